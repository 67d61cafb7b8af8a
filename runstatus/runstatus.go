// Package runstatus records per-sample analysis status documents: what was
// run, how long the stages took, and whether the run completed or why it
// failed.
package runstatus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbocation/pfx"
	"gopkg.in/guregu/null.v3"
)

// Method is one of the accepted preprocessing methods.
type Method string

const (
	MethodIllumina Method = "illumina"
	MethodNoob     Method = "noob"
	MethodSwan     Method = "swan"
	MethodRaw      Method = "raw"
)

// Methods lists all accepted preprocessing methods.
var Methods = []Method{MethodIllumina, MethodNoob, MethodSwan, MethodRaw}

// MethodFromString maps a user-supplied method name onto a Method,
// case-insensitively.
func MethodFromString(value string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(value, string(m)) {
			return m, nil
		}
	}

	names := make([]string, 0, len(Methods))
	for _, m := range Methods {
		names = append(names, string(m))
	}

	return "", fmt.Errorf("preprocessing method %q is not one of: %s", value, strings.Join(names, ", "))
}

// Status is the run-status document for one sample. Fields that are only
// known once the corresponding stage has run are nullable so an aborted run
// still serializes faithfully.
type Status struct {
	SentrixID       string `json:"sentrix_id"`
	IdatDirectory   string `json:"idat_directory"`
	Method          Method `json:"preprocessing_method"`
	BinSize         int    `json:"bin_size"`
	MinProbesPerBin int    `json:"min_probes_per_bin"`
	OutputDirectory string `json:"output_directory"`

	ArrayType           null.String `json:"array_type"`
	ReferenceSentrixIDs null.String `json:"reference_sentrix_ids"`
	RedIdatSizeMB       float64     `json:"red_idat_size_mb"`
	GreenIdatSizeMB     float64     `json:"green_idat_size_mb"`

	Completed       bool        `json:"analysis_completed_successfully"`
	FailureReason   null.String `json:"failure_reason"`
	ParsingSeconds  null.Float  `json:"raw_data_parsing_seconds"`
	AnalysisSeconds null.Float  `json:"data_analysis_seconds"`
	DownsizeTo      null.String `json:"downsize_to"`
	TimestampUTC    string      `json:"timestamp"`
}

// NoDownsizing is the DownsizeTo value (and its absence) meaning the sample
// keeps its native array design.
const NoDownsizing = "NO_DOWNSIZING"

// Path returns the status file path for a sample. When downsizeTo names a
// common array target other than NoDownsizing, it is appended to the file
// name so per-target statuses coexist.
func Path(sentrixID string, dir string, downsizeTo string) string {
	suffix := ""
	if downsizeTo != "" && downsizeTo != NoDownsizing {
		suffix = "_" + downsizeTo
	}

	return filepath.Join(dir, sentrixID+"_status"+suffix+".json")
}

// Save writes the status document to path, timestamping it first.
func (s *Status) Save(path string) error {
	s.TimestampUTC = time.Now().UTC().Format("2006-01-02T15:04:05")

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return pfx.Err(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// Load reads a status document back from path.
func Load(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, pfx.Err(err)
	}

	return &s, nil
}
