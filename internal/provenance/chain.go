// Package provenance implements the SHA-chained ledger of coverage-state
// transitions: each entry's hash commits to its own fields plus the
// previous entry's hash, so altering or reordering any entry breaks
// every hash after it. Pipe-joined fields through crypto/sha256,
// extended here with explicit chaining a single-shot audit hash never
// needed.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ZeroHash is the prevHash recorded on the first entry of a chain: 64
// lowercase hex zero digits, matching the width of a real SHA-256 hash.
var ZeroHash = strings.Repeat("0", 64)

// Entry is one coverage-state transition in the chain.
type Entry struct {
	TimestampMillis     int64
	FromState           string
	ToState             string
	CoverageQuantized   int64
	LevelBreakdown      [7]int64
	PIZCount            int64
	PIZTotalAreaSqM     float64
	PIZExcludedAreaSqM  float64
	GridDigest          string
	PolicyDigest        string
	PrevHash            string
	Hash                string
}

// preimage builds the fixed field-order canonical string that gets
// hashed: fields joined with `|`, the same separator the duplicate
// signature preimage uses. The audit log's signed NDJSON entries are
// JSON objects and do not use this separator.
func preimage(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%d|", e.TimestampMillis, e.FromState, e.ToState, e.CoverageQuantized)
	for i, w := range e.LevelBreakdown {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", w)
	}
	fmt.Fprintf(&b, "|%d|%.6f|%.6f|%s|%s|%s",
		e.PIZCount, e.PIZTotalAreaSqM, e.PIZExcludedAreaSqM,
		e.GridDigest, e.PolicyDigest, e.PrevHash)
	return b.String()
}

// computeHash returns the lowercase hex SHA-256 of e's canonical
// preimage, ignoring whatever is currently in e.Hash.
func computeHash(e Entry) string {
	sum := sha256.Sum256([]byte(preimage(e)))
	return hex.EncodeToString(sum[:])
}

// Chain is an append-only sequence of provenance entries.
type Chain struct {
	entries []Entry
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Append computes e's hash (chaining from the current tail, or ZeroHash
// for the first entry), stores the completed entry, and returns it.
func (c *Chain) Append(e Entry) Entry {
	if len(c.entries) == 0 {
		e.PrevHash = ZeroHash
	} else {
		e.PrevHash = c.entries[len(c.entries)-1].Hash
	}
	e.Hash = computeHash(e)
	c.entries = append(c.entries, e)
	return e
}

// Entries returns the chain's entries in append order. The returned
// slice is a copy; callers may not mutate the chain through it.
func (c *Chain) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries in the chain.
func (c *Chain) Len() int { return len(c.entries) }

// Verify recomputes every entry's hash in sequence and returns false at
// the first mismatch (with the index of the failing entry), or true if
// the whole chain is internally consistent.
func Verify(entries []Entry) (bool, int) {
	prev := ZeroHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return false, i
		}
		want := computeHash(e)
		if e.Hash != want {
			return false, i
		}
		prev = e.Hash
	}
	return true, -1
}
