// Package canon implements the fixed byte encodings the rest of the core
// depends on for hashing and idempotency: a canonical JSON encoder (keys
// sorted, no insignificant whitespace, fixed escape table) and the
// frozen fixed-width binary layouts the audit and decision hashes build
// on.
//
// We hand-roll the canonical JSON encoder rather than reaching for
// github.com/cyberphone/json-canonicalization: RFC 8785
// canonicalization does not give callers control over the escape table
// (it leaves control characters as lowercase \uXXXX and makes different
// numeric-formatting choices), and this encoder requires uppercase
// \u00XX escapes and a specific character set. No third-party encoder
// exposes that knob, so this is the one place this module reaches for
// stdlib primitives over a library — see DESIGN.md.
package canon

import (
	"fmt"
	"sort"
	"strings"
)

// JSONValue is the value union the canonical encoder accepts: string,
// float64, int, int64, bool, nil, []JSONValue, []string,
// map[string]JSONValue, or map[string]string. Any other concrete type is
// rejected with an error, so CanonicalJSON never has to guess how to
// encode an unknown type.
type JSONValue = interface{}

// CanonicalJSON renders v as canonical JSON bytes: object keys sorted by
// UTF-8 byte order, no insignificant whitespace, and a fixed escape
// table (", \, \n, \r, \t as standard escapes; other control bytes as
// \u00XX with uppercase hex; '/' never escaped).
func CanonicalJSON(v JSONValue) ([]byte, error) {
	var b strings.Builder
	if err := encodeValue(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func encodeValue(b *strings.Builder, v JSONValue) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		encodeString(b, t)
	case float64:
		fmt.Fprintf(b, "%s", formatNumber(t))
	case int:
		fmt.Fprintf(b, "%d", t)
	case int64:
		fmt.Fprintf(b, "%d", t)
	case []JSONValue:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeValue(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]JSONValue:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys) // UTF-8 byte order == Go string ordering for valid UTF-8
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeString(b, k)
			b.WriteByte(':')
			if err := encodeValue(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeString(b, k)
			b.WriteByte(':')
			encodeString(b, t[k])
		}
		b.WriteByte('}')
	case []string:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeString(b, e)
		}
		b.WriteByte(']')
	default:
		return fmt.Errorf("canon: unsupported value type %T", v)
	}
	return nil
}

func formatNumber(f float64) string {
	// %.10g drops trailing zeros and is stable across platforms; it
	// switches to exponent notation for magnitudes below 1e-4 or at or
	// above 1e10. Every numeric field this module feeds through canon is
	// already a deliberately rounded/quantized value.
	s := fmt.Sprintf("%.10g", f)
	return s
}

func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7F {
				fmt.Fprintf(b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
