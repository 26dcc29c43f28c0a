package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/patchcore/scanengine/pkg/models"
)

// DecisionLayoutVersion is the frozen layoutVersion for EncodeDecisionHashInput.
// Any field addition requires bumping this and treating the old layout as
// a distinct, still-decodable version.
const DecisionLayoutVersion uint8 = 1

// ThrottleStats is the optional struct carried behind the throttleStatsTag
// presence byte in the decision hash layout.
type ThrottleStats struct {
	WindowTicks    uint32
	AttemptsInWindow uint32
}

// DecisionHashInput is every field that feeds the v1 decision hash byte
// layout, in a fixed field order.
type DecisionHashInput struct {
	DecisionSchemaVersion uint16
	TierID                uint16
	OtherSchemaVersion    uint16
	PolicyHash            uint64
	SessionStableID       uint64
	CandidateStableID     uint64
	ValueScore            int64
	PerFlowCounters       []uint16 // flowBucketCount = len(PerFlowCounters)
	ThrottleStats         *ThrottleStats
	DegradationLevel      uint8
	DegradationReason     *uint8
	RejectReason          *uint8
}

// EncodeDecisionHashInput renders the fixed-width, big-endian, presence-
// tagged byte layout, padded to 16-byte alignment with
// zero bytes. Presence tags are explicit bytes (0|1), never inferred from
// language-level nil-ness at the reflection layer — this is what makes
// the layout byte-stable regardless of implementation language.
func EncodeDecisionHashInput(in DecisionHashInput) ([]byte, error) {
	if len(in.PerFlowCounters) > 255 {
		return nil, fmt.Errorf("canon: flowBucketCount %d exceeds u8 range", len(in.PerFlowCounters))
	}
	var buf bytes.Buffer
	buf.WriteByte(DecisionLayoutVersion)
	writeU16(&buf, in.DecisionSchemaVersion)
	writeU16(&buf, in.TierID)
	writeU16(&buf, in.OtherSchemaVersion)
	writeU64(&buf, in.PolicyHash)
	writeU64(&buf, in.SessionStableID)
	writeU64(&buf, in.CandidateStableID)
	writeI64(&buf, in.ValueScore)
	buf.WriteByte(uint8(len(in.PerFlowCounters)))
	for _, c := range in.PerFlowCounters {
		writeU16(&buf, c)
	}
	if in.ThrottleStats != nil {
		buf.WriteByte(1)
		writeU32(&buf, in.ThrottleStats.WindowTicks)
		writeU32(&buf, in.ThrottleStats.AttemptsInWindow)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(in.DegradationLevel)
	writeOptionalU8(&buf, in.DegradationReason)
	writeOptionalU8(&buf, in.RejectReason)

	for buf.Len()%16 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

// HashDecisionInput returns the lowercase-hex SHA-256 decisionHash of the
// encoded layout. Identical inputs always yield an identical hash.
func HashDecisionInput(in DecisionHashInput) (string, error) {
	encoded, err := EncodeDecisionHashInput(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// ExtensionResultTag discriminates the idempotency-layout result variant.
type ExtensionResultTag uint8

const (
	ResultExtended ExtensionResultTag = 0
	ResultDenied   ExtensionResultTag = 1
)

// ExtensionResult is the fixed-width idempotency-layout payload: the
// public re-emit wrapper (AlreadyProcessed) must return these exact bytes
// unchanged from the original snapshot.
type ExtensionResult struct {
	Tag              ExtensionResultTag
	CandidateStableID uint64
	EEBDelta          int64 // fixed-point, quanta of 1e-9 to stay integral
}

// EncodeExtensionResult renders the v1 extension-result idempotency layout.
func EncodeExtensionResult(r ExtensionResult) []byte {
	var buf bytes.Buffer
	buf.WriteByte(1) // layoutVersion
	buf.WriteByte(uint8(r.Tag))
	writeU64(&buf, r.CandidateStableID)
	writeI64(&buf, r.EEBDelta)
	for buf.Len()%16 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	writeU64(buf, uint64(v))
}

func writeOptionalU8(buf *bytes.Buffer, v *uint8) {
	if v != nil {
		buf.WriteByte(1)
		buf.WriteByte(*v)
	} else {
		buf.WriteByte(0)
	}
}

// DecisionHashFields is the ordered field list the AdmissionDecision's
// decisionHash is derived from: the canonical serialization of every
// preceding field on the decision itself. This is distinct from (and
// simpler than) the binary layout above — it is what internal/tracker
// actually uses to stamp AdmissionDecision.DecisionHash, keyed off the
// decision's own fields rather than the session-wide counters layout.
func DecisionHashFields(d models.AdmissionDecision) string {
	obj := map[string]JSONValue{
		"candidateId":     d.CandidateID,
		"classification":  string(d.Classification),
		"reason":          string(d.Reason),
		"eebDelta":        d.EEBDelta,
		"buildMode":       string(d.BuildMode),
		"guidanceSignal":  string(d.GuidanceSignal),
		"hardFuseTrigger": string(d.HardFuseTrigger),
	}
	encoded, err := CanonicalJSON(obj)
	if err != nil {
		// Every field above is a closed, encodable type; this cannot fail.
		panic(fmt.Sprintf("canon: decision fields failed to encode: %v", err))
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
