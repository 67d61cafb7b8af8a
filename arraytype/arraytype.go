// Package arraytype identifies which Illumina methylation array design
// produced a sample, based on the number of probes present on the chip.
package arraytype

import (
	"fmt"
	"strings"
)

// ArrayType names one of the known Illumina methylation array designs.
type ArrayType string

const (
	Illumina27K    ArrayType = "27k"
	Illumina450K   ArrayType = "450k"
	IlluminaEPIC   ArrayType = "epic_v1"
	IlluminaEPICv2 ArrayType = "epic_v2"
	IlluminaMSA48  ArrayType = "msa48"
	IlluminaMouse  ArrayType = "mouse"
	Unknown        ArrayType = "unknown"
)

// probeCountRange maps an inclusive raw probe-count range onto an array
// design. Ranges are checked in slice order, so earlier entries win.
type probeCountRange struct {
	Low, High int
	Type      ArrayType
}

// The counts come from the probe totals observed in vendor IDAT files for
// each chip generation. Two disjoint ranges both map to EPIC v1 because
// Illumina shipped the chip in two probe-count revisions.
var probeCountRanges = []probeCountRange{
	{622000, 623000, Illumina450K},
	{1050000, 1053000, IlluminaEPIC},
	{1032000, 1033000, IlluminaEPIC},
	{1100000, 1108000, IlluminaEPICv2},
	{384400, 384600, IlluminaMSA48},
	{55200, 55400, Illumina27K},
	{315000, 362000, IlluminaMouse},
}

// FromProbeCount infers the array design from the number of probes in an
// IDAT file. Counts that fall outside every known range, including zero and
// negative counts, yield Unknown rather than an error; callers decide
// whether Unknown is fatal for their use.
func FromProbeCount(count int) ArrayType {
	for _, r := range probeCountRanges {
		if count >= r.Low && count <= r.High {
			return r.Type
		}
	}

	return Unknown
}

// Supported holds the array designs the normalization pipeline accepts, in
// display order.
var Supported = []ArrayType{
	Illumina450K,
	IlluminaEPIC,
	IlluminaEPICv2,
	IlluminaMSA48,
}

// IsSupported reports whether the pipeline can process this design.
func (t ArrayType) IsSupported() bool {
	for _, s := range Supported {
		if t == s {
			return true
		}
	}

	return false
}

func (t ArrayType) String() string {
	return string(t)
}

// Pretty returns the vendor's marketing name for the design.
func (t ArrayType) Pretty() string {
	switch t {
	case Illumina27K:
		return "HumanMethylation27"
	case Illumina450K:
		return "Infinium HumanMethylation450K"
	case IlluminaEPIC:
		return "Infinium MethylationEPIC v1.0"
	case IlluminaEPICv2:
		return "Infinium MethylationEPIC v2.0"
	case IlluminaMSA48:
		return "Infinium Methylation Screening Array-48"
	}

	return "Unknown Array Type"
}

var allArrayTypes = []ArrayType{
	Illumina27K,
	Illumina450K,
	IlluminaEPIC,
	IlluminaEPICv2,
	IlluminaMSA48,
	IlluminaMouse,
	Unknown,
}

// FromString maps a stored value like "450k" back onto its ArrayType. It
// also accepts the value with any capitalization, so round-tripping through
// config files edited by hand still resolves.
func FromString(value string) (ArrayType, error) {
	for _, t := range allArrayTypes {
		if strings.EqualFold(value, string(t)) {
			return t, nil
		}
	}

	valid := make([]string, 0, len(allArrayTypes))
	for _, t := range allArrayTypes {
		valid = append(valid, string(t))
	}

	return Unknown, fmt.Errorf("invalid array type %q; valid values are: %s", value, strings.Join(valid, ", "))
}

// UnsupportedError signals that a sample resolved to an array design the
// pipeline cannot analyze. It is distinct from file-access or corrupt-data
// errors so callers can choose to skip the sample rather than abort.
type UnsupportedError struct {
	Type ArrayType
}

func (e *UnsupportedError) Error() string {
	supported := make([]string, 0, len(Supported))
	for _, t := range Supported {
		supported = append(supported, string(t))
	}

	return fmt.Sprintf("array type %q is not in the supported set: %s", e.Type, strings.Join(supported, ", "))
}
