// Package ingestion converts the raw per-frame output of the device's
// camera/IMU stack into PatchCandidate evidence the admission pipeline can
// decide on: a thin wrapper around an external collaborator, the
// platform's frame source (ARKit/ARCore-equivalent), with a Config
// struct.
package ingestion

import (
	"context"

	"github.com/patchcore/scanengine/pkg/models"
)

// RawFrame is one sample pulled from the platform's tracking stack: a pose
// estimate, a radiance sample at that pose, and the wall-clock instant it
// was captured at the sensor. Nothing here is quantized or bucketed yet —
// that is the Pipeline's job.
type RawFrame struct {
	Pose         models.Vec3
	Radiance     models.Vec3
	CapturedAtMs int64
}

// FrameSource is the boundary interface for the device's out-of-process
// tracking stack. Implementations live outside this module (platform
// bridging code); this package only depends on the interface rather
// than embedding a concrete tracking-stack client.
type FrameSource interface {
	// NextFrame blocks until a frame is available, ctx is done, or the
	// source is exhausted. Exhaustion is reported as a non-nil error,
	// which Run returns to its caller.
	NextFrame(ctx context.Context) (RawFrame, error)
}

// Config names the frame source and the cell size used to quantize
// incoming poses into coverage cells.
type Config struct {
	SourceName       string
	CoverageCellSize float64
}

// quantizeCell maps a pose's XZ plane onto the 2D coverage cell grid at
// cellSize resolution, floored toward negative infinity so cell
// boundaries are stable across the origin.
func quantizeCell(pose models.Vec3, cellSize float64) models.CoverageCell {
	if cellSize <= 0 {
		cellSize = 1
	}
	return models.CoverageCell{
		U: floorDiv(pose.X, cellSize),
		V: floorDiv(pose.Z, cellSize),
	}
}

func floorDiv(v, size float64) int32 {
	q := v / size
	iq := int32(q)
	if q < 0 && float64(iq) != q {
		iq--
	}
	return iq
}

// ToCandidate turns one RawFrame into a PatchCandidate, minting a fresh
// identity and quantizing its coverage cell per cfg. The admission
// pipeline decides everything else about the frame; this function only
// performs the wire-to-domain translation ingestion exists to do.
func ToCandidate(frame RawFrame, cfg Config) models.PatchCandidate {
	return models.PatchCandidate{
		ID:           models.NewPatchCandidateID(),
		Pose:         frame.Pose,
		Cell:         quantizeCell(frame.Pose, cfg.CoverageCellSize),
		Radiance:     frame.Radiance,
		ObservedAtMs: frame.CapturedAtMs,
	}
}

// Submitter is the one capability Run needs from the pipeline: accept a
// candidate and return its admission decision. Satisfied by
// *internal/pipeline.Pipeline.
type Submitter interface {
	Submit(candidate models.PatchCandidate) (models.AdmissionDecision, error)
}

// Run pulls frames from source until ctx is done or the source returns
// an error, translating each into a candidate and submitting it to sub.
// onDecision, if non-nil, is called with every decision Run observes —
// callers use it to push decisions onto a websocket hub or audit trail
// without Run needing to know about either.
func Run(ctx context.Context, source FrameSource, cfg Config, sub Submitter, onDecision func(models.AdmissionDecision)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := source.NextFrame(ctx)
		if err != nil {
			return err
		}

		decision, err := sub.Submit(ToCandidate(frame, cfg))
		if err != nil {
			return err
		}
		if onDecision != nil {
			onDecision(decision)
		}
	}
}
