// Package cluster implements the two-level density clustering engine:
// parameter auto-tuning, neighbor-graph dimensionality reduction, HDBSCAN
// grouping, and the macro-to-micro refinement orchestration.
package cluster

import (
	"math"

	"github.com/scopelabs/scopeintel/pkg/models"
)

// Autotune derives the clustering thresholds from the population size.
// The rules balance small datasets (which need low floors to find anything)
// against large ones (where per-mille groups would fragment the result).
func Autotune(total int) models.TuningParams {
	return models.TuningParams{
		// At least 1% of the data, clamped to [4, 15].
		MacroMinSize: clamp(4, 15, int(math.Round(0.01*float64(total)))),
		// Groups above 10% of the data (clamped to [20, 50]) are
		// refinement candidates.
		MaxClusterSize: clamp(20, 50, int(math.Round(0.10*float64(total)))),
		MicroMinSize:   microMinSize(total),
		MacroNeighbors: min(15, total-1),
	}
}

func microMinSize(total int) int {
	if total < 500 {
		return 3
	}
	return 4
}

func clamp(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
