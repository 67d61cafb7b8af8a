package preprocess

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SWANIndices partitions an intensity vector into the two probe chemistry
// types and selects the matched random subsets the correction calibrates
// on. TypeI and TypeII hold positions within the full intensity vector;
// SubsetI and SubsetII hold positions within TypeI and TypeII respectively
// and must have equal length.
type SWANIndices struct {
	TypeI  []int
	TypeII []int

	SubsetI  []int
	SubsetII []int
}

func (idx SWANIndices) validate(vectorLen int) error {
	if len(idx.SubsetI) == 0 {
		return fmt.Errorf("empty probe subsets")
	}
	if len(idx.SubsetI) != len(idx.SubsetII) {
		return fmt.Errorf("subset sizes must match: type I has %d, type II has %d", len(idx.SubsetI), len(idx.SubsetII))
	}

	for _, i := range idx.TypeI {
		if i < 0 || i >= vectorLen {
			return fmt.Errorf("type I probe index %d outside intensity vector of length %d", i, vectorLen)
		}
	}
	for _, i := range idx.TypeII {
		if i < 0 || i >= vectorLen {
			return fmt.Errorf("type II probe index %d outside intensity vector of length %d", i, vectorLen)
		}
	}
	for _, i := range idx.SubsetI {
		if i < 0 || i >= len(idx.TypeI) {
			return fmt.Errorf("type I subset position %d outside %d type I probes", i, len(idx.TypeI))
		}
	}
	for _, i := range idx.SubsetII {
		if i < 0 || i >= len(idx.TypeII) {
			return fmt.Errorf("type II subset position %d outside %d type II probes", i, len(idx.TypeII))
		}
	}

	return nil
}

// RandomSubsetIndices chooses equal-size random subsets of the type I and
// type II probes, reproducibly for a given seed. The subset size is the
// smaller of the two type counts. Returned positions index into the
// per-type index lists and are sorted.
func RandomSubsetIndices(nTypeI, nTypeII int, seed int64) (subsetI, subsetII []int, err error) {
	if nTypeI <= 0 || nTypeII <= 0 {
		return nil, nil, fmt.Errorf("both probe types must be present: got %d type I, %d type II", nTypeI, nTypeII)
	}

	n := nTypeI
	if nTypeII < n {
		n = nTypeII
	}

	rng := rand.New(rand.NewSource(seed))
	subsetI = rng.Perm(nTypeI)[:n]
	subsetII = rng.Perm(nTypeII)[:n]
	sort.Ints(subsetI)
	sort.Ints(subsetII)

	return subsetI, subsetII, nil
}

// SWAN applies subset-quantile within-array normalization to intensity,
// shaped [samples][probes], equalizing the empirical distributions of the
// two probe chemistry types. Per sample, a shared reference curve is built
// by averaging the sorted intensities of the two matched subsets; each
// type's full vector is then rank-mapped onto that curve.
//
// Probes whose rank falls outside the subset's observed rank range are not
// extrapolated: their raw offset from the subset's extreme intensity is
// added to the corresponding extreme of the reference curve, preserving
// ordering beyond the calibration range. Corrected values at or below zero
// are replaced by bgIntensity for that sample, never by zero.
//
// The returned matrix has the shape of intensity; positions not listed in
// idx.TypeI or idx.TypeII (control and SNP probes) are NaN. Samples are
// independent and processed by a bounded worker pool; ctx is consulted
// between samples only.
//
// Reference: Maksimovic, Gordon and Oshlack (2012), Genome Biology 13, R44.
func SWAN(ctx context.Context, intensity [][]float64, bgIntensity []float64, idx SWANIndices) ([][]float64, error) {
	nSamples := len(intensity)
	if nSamples == 0 {
		return nil, fmt.Errorf("no samples to correct")
	}
	if len(bgIntensity) != nSamples {
		return nil, fmt.Errorf("bgIntensity has %d values, intensity has %d samples", len(bgIntensity), nSamples)
	}

	nProbes := len(intensity[0])
	for i, row := range intensity {
		if len(row) != nProbes {
			return nil, fmt.Errorf("sample %d has %d probes, sample 0 has %d", i, len(row), nProbes)
		}
	}

	if err := idx.validate(nProbes); err != nil {
		return nil, err
	}

	out := make([][]float64, nSamples)

	err := forEachRow(ctx, nSamples, func(i int) error {
		out[i] = swanSample(intensity[i], bgIntensity[i], idx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func swanSample(intensity []float64, bg float64, idx SWANIndices) []float64 {
	nSub := len(idx.SubsetI)

	// Shared reference curve: elementwise mean of the two sorted subset
	// intensity vectors.
	sortedI := sortedSubset(intensity, idx.TypeI, idx.SubsetI)
	sortedII := sortedSubset(intensity, idx.TypeII, idx.SubsetII)
	ref := make([]float64, nSub)
	for j := range ref {
		ref[j] = (sortedI[j] + sortedII[j]) / 2
	}

	out := make([]float64, len(intensity))
	for j := range out {
		out[j] = math.NaN()
	}

	swanType(out, intensity, bg, idx.TypeI, idx.SubsetI, ref)
	swanType(out, intensity, bg, idx.TypeII, idx.SubsetII, ref)

	return out
}

// swanType corrects the probes of one chemistry type in place in out.
func swanType(out, intensity []float64, bg float64, typeIdx, subsetPos []int, ref []float64) {
	curr := make([]float64, len(typeIdx))
	for j, p := range typeIdx {
		curr[j] = intensity[p]
	}

	// Rank-normalize the full type vector to (0, 1].
	x := tieAveragedRanks(curr)
	n := float64(len(curr))
	for j := range x {
		x[j] /= n
	}

	// Interpolation table: the subset's normalized ranks against the
	// reference curve.
	xp := make([]float64, len(subsetPos))
	for j, p := range subsetPos {
		xp[j] = x[p]
	}
	sort.Float64s(xp)

	corrected := interpLinear(x, xp, ref)

	// Beyond the calibration range, shift from the reference extreme by the
	// probe's raw distance from the subset extreme.
	subMin, subMax := math.Inf(1), math.Inf(-1)
	for _, p := range subsetPos {
		if curr[p] < subMin {
			subMin = curr[p]
		}
		if curr[p] > subMax {
			subMax = curr[p]
		}
	}

	xpMin, xpMax := xp[0], xp[len(xp)-1]
	for j := range corrected {
		if x[j] > xpMax {
			corrected[j] += curr[j] - subMax
		} else if x[j] < xpMin {
			corrected[j] += curr[j] - subMin
		}

		if corrected[j] <= 0 {
			corrected[j] = bg
		}

		out[typeIdx[j]] = corrected[j]
	}
}

// sortedSubset gathers intensity at the subset's probe positions and sorts
// the result.
func sortedSubset(intensity []float64, typeIdx, subsetPos []int) []float64 {
	vals := make([]float64, len(subsetPos))
	for j, p := range subsetPos {
		vals[j] = intensity[typeIdx[p]]
	}
	sort.Float64s(vals)

	return vals
}

// tieAveragedRanks returns 1-based ranks of vals, with tied values sharing
// the mean of the ranks they span.
func tieAveragedRanks(vals []float64) []float64 {
	n := len(vals)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return vals[order[a]] < vals[order[b]]
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && vals[order[j+1]] == vals[order[i]] {
			j++
		}

		// Mean of 1-based ranks i+1 .. j+1.
		mean := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[order[k]] = mean
		}

		i = j + 1
	}

	return ranks
}

// interpLinear evaluates piecewise-linear interpolation of the points
// (xp, fp) at each x, clamping to the end values outside the xp range. xp
// must be ascending and the SWAN tail policy handles out-of-range points
// after the fact.
func interpLinear(x, xp, fp []float64) []float64 {
	out := make([]float64, len(x))
	last := len(xp) - 1

	for i, xi := range x {
		switch {
		case xi <= xp[0]:
			out[i] = fp[0]
		case xi >= xp[last]:
			out[i] = fp[last]
		default:
			j := sort.SearchFloat64s(xp, xi)
			if xp[j] == xi {
				out[i] = fp[j]
				continue
			}

			t := (xi - xp[j-1]) / (xp[j] - xp[j-1])
			out[i] = fp[j-1] + t*(fp[j]-fp[j-1])
		}
	}

	return out
}
