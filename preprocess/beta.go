package preprocess

import (
	"fmt"
)

// Beta computes methylation beta values elementwise from paired methylated
// and unmethylated intensity matrices of identical shape:
//
//	beta = methylated / (methylated + unmethylated + offset)
//
// A zero denominator yields NaN rather than an error. When minZero is set,
// both inputs are floored at zero first, since negative corrected
// intensities are non-physical. A threshold in (0, 0.5] clips the result
// into [threshold, 1-threshold]; zero disables clipping.
func Beta(methylated, unmethylated [][]float64, offset, threshold float64, minZero bool) ([][]float64, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %v", offset)
	}
	if threshold < 0 || threshold > 0.5 {
		return nil, fmt.Errorf("beta threshold must be between 0 and 0.5, got %v", threshold)
	}
	if len(methylated) != len(unmethylated) {
		return nil, fmt.Errorf("methylated has %d rows, unmethylated has %d", len(methylated), len(unmethylated))
	}

	betas := make([][]float64, len(methylated))
	for i := range methylated {
		if len(methylated[i]) != len(unmethylated[i]) {
			return nil, fmt.Errorf("row %d: methylated has %d values, unmethylated has %d", i, len(methylated[i]), len(unmethylated[i]))
		}

		row := make([]float64, len(methylated[i]))
		for j := range row {
			meth, unmeth := methylated[i][j], unmethylated[i][j]
			if minZero {
				if meth < 0 {
					meth = 0
				}
				if unmeth < 0 {
					unmeth = 0
				}
			}

			// 0/0 is NaN under IEEE arithmetic, which is the wanted
			// behavior for probes with no signal in either channel.
			beta := meth / (meth + unmeth + offset)

			if threshold > 0 {
				if beta < threshold {
					beta = threshold
				} else if beta > 1-threshold {
					beta = 1 - threshold
				}
			}

			row[j] = beta
		}

		betas[i] = row
	}

	return betas, nil
}
