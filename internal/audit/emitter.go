package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/patchcore/scanengine/pkg/models"
)

// Writer is the append-only sink an emitter writes signed lines to. The
// concrete implementation (local file, persistence-backed stream) is
// supplied by the caller; the emitter only needs Append.
type Writer interface {
	Append(line []byte) error
}

// Emitter validates and sequences trace events, then writes each
// accepted event as a signed NDJSON line. The HMAC-SHA256 signature uses
// stdlib crypto/hmac directly rather than a third-party JWT/signing
// library: every signing library in the retrieval pack (golang-jwt and
// similar) is a full token format with its own header/claims envelope,
// a mismatch for "sign one NDJSON line and append it to a flat log" —
// see DESIGN.md.
type Emitter struct {
	mu        sync.Mutex
	validator *SequenceValidator
	writer    Writer
	key       []byte
	ended     map[string]bool
}

// NewEmitter returns an emitter writing to w, signing each line with key.
func NewEmitter(w Writer, key []byte) *Emitter {
	return &Emitter{
		validator: NewSequenceValidator(),
		writer:    w,
		key:       key,
		ended:     make(map[string]bool),
	}
}

// signedLine is the on-disk NDJSON record: the canonical event payload
// plus its HMAC-SHA256 signature in lowercase hex.
type signedLine struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

func (e *Emitter) sign(payload []byte) string {
	mac := hmac.New(sha256.New, e.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// EmitStart validates and appends a trace_start event.
func (e *Emitter) EmitStart(event models.TraceEvent) error {
	return e.emitNonTerminal(event)
}

// EmitStep validates and appends a trace_step event.
func (e *Emitter) EmitStep(event models.TraceEvent) error {
	return e.emitNonTerminal(event)
}

// EmitFail implements the same asymmetric commit semantics as EmitEnd: a
// failed trace is just as terminal as a successful one once validation
// passes.
func (e *Emitter) EmitFail(event models.TraceEvent) error {
	return e.emitTerminal(event)
}

// EmitEnd implements the v7.1.0 rule: (a) run validation; (b) if
// validation fails, isEnded must stay false for the trace; (c) if
// validation passes but the write fails, isEnded must still become true
// because the logical decision (this trace is over) is committed
// regardless of whether the persistence layer kept up.
func (e *Emitter) EmitEnd(event models.TraceEvent) error {
	return e.emitTerminal(event)
}

func (e *Emitter) emitTerminal(event models.TraceEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validator.Accept(event); err != nil {
		return err
	}
	// Validation passed: the trace is logically terminal from this point
	// on regardless of whether the write below succeeds.
	e.ended[event.TraceID] = true

	if err := e.writeLocked(event); err != nil {
		return fmt.Errorf("audit: write failed after validation passed (trace marked ended anyway): %w", err)
	}
	return nil
}

func (e *Emitter) emitNonTerminal(event models.TraceEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validator.Accept(event); err != nil {
		return err
	}
	return e.writeLocked(event)
}

// writeLocked must be called with e.mu held.
func (e *Emitter) writeLocked(event models.TraceEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	sig := e.sign(raw)
	line, err := json.Marshal(signedLine{Payload: raw, Signature: sig})
	if err != nil {
		return err
	}
	return e.writer.Append(line)
}

// IsEnded reports whether traceID has been marked terminal (by a
// validation-passing EmitEnd or EmitFail), independent of whether the
// underlying write succeeded.
func (e *Emitter) IsEnded(traceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended[traceID]
}

// VerifyLine checks a single signed NDJSON line's HMAC and returns the
// inner event payload bytes if it verifies.
func VerifyLine(line []byte, key []byte) ([]byte, error) {
	var sl signedLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil, fmt.Errorf("audit: malformed signed line: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(sl.Payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(sl.Signature)) {
		return nil, fmt.Errorf("audit: signature mismatch")
	}
	return sl.Payload, nil
}

// ReadSignedLog reads every well-formed, signature-verified line from r
// and decodes it into a models.TraceEvent. A line that fails verification
// or decoding (typically a final line left unterminated or truncated by a
// mid-write crash) is skipped rather than failing the whole read; the
// total length of skipped lines is reported via tailBytes.
func ReadSignedLog(r io.Reader, key []byte) (events []models.TraceEvent, tailBytes int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		payload, verr := VerifyLine(raw, key)
		if verr != nil {
			tailBytes += len(raw)
			continue
		}
		var event models.TraceEvent
		if jerr := json.Unmarshal(payload, &event); jerr != nil {
			tailBytes += len(raw)
			continue
		}
		events = append(events, event)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return events, tailBytes, scanErr
	}
	return events, tailBytes, nil
}
