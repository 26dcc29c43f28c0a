package ssot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/patchcore/scanengine/internal/canon"
)

// ProfileName is one of the four fixed configuration profiles.
type ProfileName string

const (
	ProfileConservative ProfileName = "conservative"
	ProfileStandard     ProfileName = "standard"
	ProfileExtreme      ProfileName = "extreme"
	ProfileLab          ProfileName = "lab"
)

// SubConfig names the ten sub-configurations each profile binds.
type SubConfig struct {
	Sensor          map[string]string
	StateMachine    map[string]string
	Quality         map[string]string
	DualAnchor      map[string]string
	TwoPhaseGate    map[string]string
	Privacy         map[string]string
	Performance     map[string]string
	Testing         map[string]string
	Recovery        map[string]string
	DomainBoundary  map[string]string
}

// Profile binds a name to its ten sub-configs and the SSOT constant
// bundle it activates.
type Profile struct {
	Name      ProfileName
	Constants Constants
	Sub       SubConfig
}

// Profiles returns the four fixed profiles. Values differ only in the
// knobs that plausibly change between a conservative ship build, the
// standard default, an "extreme" high-recall debug build, and a lab
// build used for data collection; the underlying Constants struct shape
// is identical across all four.
func Profiles() map[ProfileName]Profile {
	base := Default()

	conservative := base
	conservative.SoftLimitPatchCount = 500
	conservative.HardLimitPatchCount = 700
	conservative.IGMinSoft = 0.3
	conservative.NoveltyMinSoft = 0.25

	extreme := base
	extreme.SoftLimitPatchCount = 1500
	extreme.HardLimitPatchCount = 2000
	extreme.IGMinSoft = 0.1
	extreme.NoveltyMinSoft = 0.05

	lab := base
	lab.SoftLimitPatchCount = 5000
	lab.HardLimitPatchCount = 10000
	lab.MaxCells = 1_000_000

	return map[ProfileName]Profile{
		ProfileConservative: {Name: ProfileConservative, Constants: conservative, Sub: SubConfig{}},
		ProfileStandard:     {Name: ProfileStandard, Constants: base, Sub: SubConfig{}},
		ProfileExtreme:      {Name: ProfileExtreme, Constants: extreme, Sub: SubConfig{}},
		ProfileLab:          {Name: ProfileLab, Constants: lab, Sub: SubConfig{}},
	}
}

func constantsToJSON(c Constants) canon.JSONValue {
	weights := make([]canon.JSONValue, len(c.LevelWeights))
	for i, w := range c.LevelWeights {
		weights[i] = w
	}
	return map[string]canon.JSONValue{
		"schemaVersionId":        float64(c.SchemaVersionID),
		"eebBaseBudget":          c.EEBBaseBudget,
		"eebMinQuantum":          c.EEBMinQuantum,
		"softLimitPatchCount":    float64(c.SoftLimitPatchCount),
		"hardLimitPatchCount":    float64(c.HardLimitPatchCount),
		"softBudgetThreshold":    c.SoftBudgetThreshold,
		"hardBudgetThreshold":    c.HardBudgetThreshold,
		"igMinSoft":              c.IGMinSoft,
		"noveltyMinSoft":         c.NoveltyMinSoft,
		"poseEps":                c.PoseEps,
		"coverageCellSize":       c.CoverageCellSize,
		"radianceBinning":        c.RadianceBinning,
		"dsEpsilon":              c.DSEpsilon,
		"dsConflictSwitch":       c.DSConflictSwitch,
		"coverageEmaAlpha":       c.CoverageEMAAlpha,
		"maxCoverageDeltaPerSec": c.MaxCoverageDeltaPerSec,
		"levelWeights":           weights,
		"maxCells":               float64(c.MaxCells),
	}
}

func subConfigToJSON(s SubConfig) canon.JSONValue {
	toJV := func(m map[string]string) canon.JSONValue {
		out := make(map[string]canon.JSONValue, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return map[string]canon.JSONValue{
		"sensor":         toJV(s.Sensor),
		"stateMachine":   toJV(s.StateMachine),
		"quality":        toJV(s.Quality),
		"dualAnchor":     toJV(s.DualAnchor),
		"twoPhaseGate":   toJV(s.TwoPhaseGate),
		"privacy":        toJV(s.Privacy),
		"performance":    toJV(s.Performance),
		"testing":        toJV(s.Testing),
		"recovery":       toJV(s.Recovery),
		"domainBoundary": toJV(s.DomainBoundary),
	}
}

// Hash returns the SHA-256 of the canonical-JSON encoding of the profile.
// This is the binding recorded at session start; drift detection compares
// fresh hashes against it for the lifetime of the session.
func (p Profile) Hash() (string, error) {
	obj := map[string]canon.JSONValue{
		"name":      string(p.Name),
		"constants": constantsToJSON(p.Constants),
		"sub":       subConfigToJSON(p.Sub),
	}
	encoded, err := canon.CanonicalJSON(obj)
	if err != nil {
		return "", fmt.Errorf("ssot: profile hash encode: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// DriftDetector records a profile's hash at session start and flags any
// later mismatch — the only way a long-running session would otherwise
// notice its active constant bundle had silently drifted.
type DriftDetector struct {
	bound string
}

// BindSession records profile p's hash as the session's binding.
func BindSession(p Profile) (*DriftDetector, error) {
	h, err := p.Hash()
	if err != nil {
		return nil, err
	}
	return &DriftDetector{bound: h}, nil
}

// CheckDrift returns false if p's current hash no longer matches the
// binding recorded at session start.
func (d *DriftDetector) CheckDrift(p Profile) (bool, error) {
	h, err := p.Hash()
	if err != nil {
		return false, err
	}
	return h == d.bound, nil
}

// BoundHash exposes the hash recorded at session start, for audit records.
func (d *DriftDetector) BoundHash() string {
	return d.bound
}
