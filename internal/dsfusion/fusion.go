// Package dsfusion implements Dempster-Shafer belief mass combination and
// reliability discounting for grid cell evidence. The combine/discount
// pair here is pure arithmetic, isolated into its own file free of any
// I/O or mutable state.
package dsfusion

import (
	"math"

	"github.com/patchcore/scanengine/pkg/models"
)

// sanitize replaces a NaN/Inf-carrying mass function with vacuous mass.
func sanitize(m models.DSMassFunction) models.DSMassFunction {
	if badFloat(m.Occupied) || badFloat(m.Free) || badFloat(m.Unknown) {
		return models.VacuousMass()
	}
	return m
}

func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Discount scales mass m by reliability r ∈ [0,1]. r=0 yields vacuous
// mass; r=1 preserves m exactly. The sum-to-1 invariant is preserved by
// construction: occupied and free shrink by r, and whatever they give up
// flows into unknown.
func Discount(m models.DSMassFunction, r float64) models.DSMassFunction {
	m = sanitize(m)
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	if r == 1 {
		return m
	}
	return models.DSMassFunction{
		Occupied: r * m.Occupied,
		Free:     r * m.Free,
		Unknown:  1 - r*(m.Occupied+m.Free),
	}
}

// Combine fuses two mass functions using Dempster's rule when the
// conflict mass K is strictly below conflictSwitch, and the Yager
// fallback otherwise (K assigned entirely to unknown rather than used
// to renormalize). NaN/Inf inputs are replaced with vacuous mass before
// combination. Combine is commutative in both branches because K, and
// every numerator, is symmetric in (m1, m2).
func Combine(m1, m2 models.DSMassFunction, epsilon, conflictSwitch float64) models.DSMassFunction {
	m1 = sanitize(m1)
	m2 = sanitize(m2)

	k := m1.Occupied*m2.Free + m1.Free*m2.Occupied

	occupiedNum := m1.Occupied*m2.Occupied + m1.Occupied*m2.Unknown + m1.Unknown*m2.Occupied
	freeNum := m1.Free*m2.Free + m1.Free*m2.Unknown + m1.Unknown*m2.Free
	unknownNum := m1.Unknown * m2.Unknown

	var result models.DSMassFunction
	if k < conflictSwitch {
		denom := 1 - k
		if denom <= epsilon {
			// Degenerate near-total-conflict case even though K fell
			// below the switch threshold by a hair; avoid dividing by
			// ~0 and fall back to Yager-style assignment instead.
			result = models.DSMassFunction{
				Occupied: occupiedNum,
				Free:     freeNum,
				Unknown:  unknownNum + k,
			}
		} else {
			result = models.DSMassFunction{
				Occupied: occupiedNum / denom,
				Free:     freeNum / denom,
				Unknown:  unknownNum / denom,
			}
		}
	} else {
		result = models.DSMassFunction{
			Occupied: occupiedNum,
			Free:     freeNum,
			Unknown:  unknownNum + k,
		}
	}
	return result
}

// VerdictToMass maps a monotone deltaMultiplier ∈ [0,1] to a mass
// function: 1.0 concentrates belief on occupied, 0.0 on free-with-
// unknown, 0.5 sits mostly in unknown. The mapping is linear in both
// halves of the range so deltaMultiplier remains a monotone knob rather
// than introducing a discontinuity at 0.5.
func VerdictToMass(deltaMultiplier float64) models.DSMassFunction {
	if deltaMultiplier < 0 {
		deltaMultiplier = 0
	}
	if deltaMultiplier > 1 {
		deltaMultiplier = 1
	}
	switch {
	case deltaMultiplier >= 0.5:
		// Scale from (0.5 -> mostly unknown) to (1.0 -> high occupied).
		t := (deltaMultiplier - 0.5) * 2 // [0,1]
		occupied := 0.1 + t*0.8
		unknown := 0.8 - t*0.7
		free := 1 - occupied - unknown
		return models.DSMassFunction{Occupied: occupied, Free: free, Unknown: unknown}
	default:
		// Scale from (0.0 -> small free, high unknown) to (0.5 -> mostly unknown).
		t := deltaMultiplier * 2 // [0,1]
		free := 0.2 - t*0.1
		occupied := t * 0.1
		unknown := 1 - free - occupied
		return models.DSMassFunction{Occupied: occupied, Free: free, Unknown: unknown}
	}
}
