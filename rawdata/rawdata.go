// Package rawdata assembles per-sample two-channel probe intensities into
// the aligned matrices the normalization pipeline operates on. The vendor
// file format itself is decoded elsewhere; this package consumes already
// parsed (probe ID, intensity) vectors.
package rawdata

import (
	"fmt"
	"strings"

	"github.com/neuropathbasel-pub/cnquant/arraytype"
)

// Sample holds one sample's decoded channel data: the Illumina address IDs
// in file order, and the matching green and red mean intensities.
type Sample struct {
	SentrixID string
	IDs       []int64
	Grn       []float64
	Red       []float64
}

// MixedArrayTypesError reports samples that resolve to different array
// designs. Samples processed together must share one design; mixing is a
// hard error, never a silent degrade.
type MixedArrayTypesError struct {
	Types []arraytype.ArrayType
}

func (e *MixedArrayTypesError) Error() string {
	names := make([]string, 0, len(e.Types))
	for _, t := range e.Types {
		names = append(names, string(t))
	}

	return fmt.Sprintf("array types must all be the same, got: %s", strings.Join(names, ", "))
}

// RawData is a set of samples sharing one array design, with their channel
// intensities aligned on a common probe ID order. Matrices are indexed
// [sample][probe] and sample order matches SentrixIDs.
type RawData struct {
	SentrixIDs []string
	ArrayType  arraytype.ArrayType
	IDs        []int64
	Grn        [][]float64
	Red        [][]float64
}

// New validates and aligns the given samples. Every sample must resolve,
// via its probe count, to the same supported array design; otherwise a
// *MixedArrayTypesError or *arraytype.UnsupportedError is returned. When
// samples carry different probe ID sets (manifest revisions within one
// design), the matrices are restricted to the IDs common to all samples, in
// the first sample's order. Sample order is preserved throughout.
func New(samples []Sample) (*RawData, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples given")
	}

	types := make([]arraytype.ArrayType, len(samples))
	for i, s := range samples {
		if len(s.Grn) != len(s.IDs) || len(s.Red) != len(s.IDs) {
			return nil, fmt.Errorf("sample %s: %d IDs but %d green and %d red intensities", s.SentrixID, len(s.IDs), len(s.Grn), len(s.Red))
		}

		types[i] = arraytype.FromProbeCount(len(s.IDs))
	}

	for _, t := range types[1:] {
		if t != types[0] {
			return nil, &MixedArrayTypesError{Types: types}
		}
	}

	if !types[0].IsSupported() {
		return nil, &arraytype.UnsupportedError{Type: types[0]}
	}

	out := &RawData{
		SentrixIDs: make([]string, len(samples)),
		ArrayType:  types[0],
	}
	for i, s := range samples {
		out.SentrixIDs[i] = s.SentrixID
	}

	if identicalIDs(samples) {
		out.IDs = samples[0].IDs
		out.Grn = make([][]float64, len(samples))
		out.Red = make([][]float64, len(samples))
		for i, s := range samples {
			out.Grn[i] = s.Grn
			out.Red[i] = s.Red
		}

		return out, nil
	}

	return intersectSamples(out, samples)
}

func identicalIDs(samples []Sample) bool {
	first := samples[0].IDs
	for _, s := range samples[1:] {
		if len(s.IDs) != len(first) {
			return false
		}
		for i, id := range s.IDs {
			if id != first[i] {
				return false
			}
		}
	}

	return true
}

// intersectSamples restricts all samples to the probe IDs present in every
// sample, ordered by the first sample.
func intersectSamples(out *RawData, samples []Sample) (*RawData, error) {
	common := make(map[int64]int, len(samples[0].IDs))
	for _, id := range samples[0].IDs {
		common[id] = 1
	}
	for _, s := range samples[1:] {
		for _, id := range s.IDs {
			if n, ok := common[id]; ok && n == 1 {
				common[id] = 2
			}
		}
		for id, n := range common {
			if n == 1 {
				delete(common, id)
			} else {
				common[id] = 1
			}
		}
	}

	if len(common) == 0 {
		return nil, fmt.Errorf("samples share no probe IDs")
	}

	ids := make([]int64, 0, len(common))
	for _, id := range samples[0].IDs {
		if _, ok := common[id]; ok {
			ids = append(ids, id)
		}
	}
	out.IDs = ids

	out.Grn = make([][]float64, len(samples))
	out.Red = make([][]float64, len(samples))
	for i, s := range samples {
		byID := make(map[int64]int, len(s.IDs))
		for j, id := range s.IDs {
			byID[id] = j
		}

		grn := make([]float64, len(ids))
		red := make([]float64, len(ids))
		for j, id := range ids {
			k, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("sample %s is missing common probe ID %d", s.SentrixID, id)
			}
			grn[j] = s.Grn[k]
			red[j] = s.Red[k]
		}

		out.Grn[i] = grn
		out.Red[i] = red
	}

	return out, nil
}
