package models

// Level is a discrete evidence-grid tier, L0 (least confident) through L6
// (most confident). The ordering is load-bearing: level weights must stay
// monotone non-decreasing as levels increase, and provenance hashing walks
// the levels in this order.
type Level uint8

const (
	L0 Level = iota
	L1
	L2
	L3
	L4
	L5
	L6
)

// NumLevels is the count of defined levels, used to size level-breakdown
// arrays in provenance entries.
const NumLevels = int(L6) + 1

// String renders a level the way log lines and audit records expect.
func (l Level) String() string {
	names := [...]string{"L0", "L1", "L2", "L3", "L4", "L5", "L6"}
	if int(l) < len(names) {
		return names[l]
	}
	return "L?"
}

// SpatialKey identifies a grid cell by Morton code and level. Ordering by
// (MortonCode, Level) ascending is the fixed deterministic iteration order
// for the whole evidence grid.
type SpatialKey struct {
	MortonCode uint64
	Level      Level
}

// Less reports whether k sorts before other under the grid's deterministic
// iteration order: ascending by (MortonCode, Level).
func (k SpatialKey) Less(other SpatialKey) bool {
	if k.MortonCode != other.MortonCode {
		return k.MortonCode < other.MortonCode
	}
	return k.Level < other.Level
}

// DSMassFunction is a Dempster-Shafer belief mass triple over
// {occupied, free, unknown}. The triple must always sum to 1 within
// DS_EPSILON; NaN/Inf inputs are mapped to the vacuous mass by callers
// before this type is ever populated with them.
type DSMassFunction struct {
	Occupied float64 `json:"occupied"`
	Free     float64 `json:"free"`
	Unknown  float64 `json:"unknown"`
}

// VacuousMass is the "no evidence yet" belief state: all mass on unknown.
func VacuousMass() DSMassFunction {
	return DSMassFunction{Occupied: 0, Free: 0, Unknown: 1}
}

// DimensionalScoreSet holds the nine bounded [0,1] auxiliary channels a
// cell carries alongside its DS mass (surface quality signals such as
// grazing angle, blur, multi-view agreement, etc.). The exact channel
// semantics are owned by the caller; this type only enforces shape.
type DimensionalScoreSet [9]float64

// DirectionalMask packs observation-direction bits for a cell. Two
// independent bits set means the cell has been observed from at least two
// distinct directions.
type DirectionalMask uint32

// PopCount returns the number of distinct observation directions recorded.
func (m DirectionalMask) PopCount() int {
	count := 0
	for v := uint32(m); v != 0; v &= v - 1 {
		count++
	}
	return count
}

// GridCell is one occupied slot of the evidence grid.
type GridCell struct {
	PatchID          string               `json:"patchId"`
	QuantizedX       int32                `json:"quantizedX"`
	QuantizedY       int32                `json:"quantizedY"`
	QuantizedZ       int32                `json:"quantizedZ"`
	Scores           DimensionalScoreSet  `json:"scores"`
	DS               DSMassFunction       `json:"ds"`
	Level            Level                `json:"level"`
	DirectionalMask  DirectionalMask      `json:"directionalMask"`
	LastUpdatedMillis int64               `json:"lastUpdatedMillis"`
}
