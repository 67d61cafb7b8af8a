package probes

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
	"github.com/gocarina/gocsv"
)

// ManifestRow is one probe annotation record. Address IDs are kept as
// strings because some manifest revisions leave AddressB_ID blank for type
// II probes.
type ManifestRow struct {
	IlmnID     string `csv:"IlmnID"`
	Name       string `csv:"Name"`
	AddressA   string `csv:"AddressA_ID"`
	AddressB   string `csv:"AddressB_ID"`
	DesignType string `csv:"Infinium_Design_Type"`
	Channel    string `csv:"Color_Channel"`
}

// Manifest is the probe set of one array design, in manifest file order.
// The order is fixed per design and must match the probe order of every
// intensity matrix used with it.
type Manifest struct {
	Rows []ManifestRow
}

// LoadManifest reads a probe manifest from r. The column delimiter is
// detected rather than assumed, since manifests circulate both as
// comma-separated and tab-separated files.
func LoadManifest(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = determineDelimiter(data)
	reader.LazyQuotes = true

	var rows []ManifestRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, pfx.Err(err)
	}

	for i, row := range rows {
		if _, err := ParseProbeType(row.DesignType); err != nil {
			return nil, fmt.Errorf("manifest row %d (%s): %v", i, row.IlmnID, err)
		}
		if _, err := ParseChannel(row.Channel); err != nil {
			return nil, fmt.Errorf("manifest row %d (%s): %v", i, row.IlmnID, err)
		}
	}

	return &Manifest{Rows: rows}, nil
}

// determineDelimiter returns the single most likely rune delimiting the
// manifest columns, falling back to a comma.
func determineDelimiter(data []byte) rune {
	// A prefix is plenty for detection and keeps large manifests cheap.
	sample := data
	if len(sample) > 64*1024 {
		sample = sample[:64*1024]
	}

	d := detector.New()
	delimiters := d.DetectDelimiter(bytes.NewReader(sample), '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return ','
}

// ProbeInfo returns the manifest rows matching the given probe type, and
// channel when channel is not AnyChannel. Row order is preserved.
func (m *Manifest) ProbeInfo(probeType ProbeType, channel Channel) ([]ManifestRow, error) {
	if _, err := ParseProbeType(string(probeType)); err != nil {
		return nil, err
	}
	if _, err := ParseChannel(string(channel)); err != nil {
		return nil, err
	}

	var out []ManifestRow
	for _, row := range m.Rows {
		if row.DesignType != string(probeType) {
			continue
		}
		if channel != AnyChannel && row.Channel != string(channel) {
			continue
		}
		out = append(out, row)
	}

	return out, nil
}

// MethylationProbes returns the IlmnIDs of all type I and type II
// methylation probes, in manifest order. SNP and control probes are
// excluded.
func (m *Manifest) MethylationProbes() []string {
	var out []string
	for _, row := range m.Rows {
		if row.DesignType == string(TypeI) || row.DesignType == string(TypeII) {
			out = append(out, row.IlmnID)
		}
	}

	return out
}

// TypeIndices returns, per chemistry type, the positions of that type's
// probes within the manifest. These index lists partition an intensity
// vector that follows manifest order, which is what the within-array bias
// correction consumes.
func (m *Manifest) TypeIndices() map[ProbeType][]int {
	out := make(map[ProbeType][]int)
	for i, row := range m.Rows {
		t := ProbeType(row.DesignType)
		out[t] = append(out[t], i)
	}

	return out
}
