// Package canon produces canonical JSON for content hashing.
//
// The regeneration hash guard compares a hash of an entity's current upstream
// inputs against the hash stored on its artifact. Both sides must serialize
// identically, so this package defines the one serialization used for hashing:
//
//   - object keys sorted bytewise
//   - strings NFC normalized, no HTML escaping
//   - numbers written verbatim as decoded (json.Number), never through float64
//
// Arbitrary Go values are round-tripped through encoding/json with UseNumber
// before canonicalization, which keeps numeric text stable regardless of how
// the caller represented the value.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	decoded, err := reencode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := write(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reencode converts v into the small set of types write understands:
// nil, bool, string, json.Number, []any, map[string]any.
func reencode(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, json.Number, []any, map[string]any:
		// Containers may still hold other types; write re-enters reencode
		// for each element, so pass through here.
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical reencode: %w", err)
	}
	return out, nil
}

func write(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			e, err := reencode(elem)
			if err != nil {
				return err
			}
			if err := write(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			e, err := reencode(val[k])
			if err != nil {
				return err
			}
			if err := write(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		e, err := reencode(v)
		if err != nil {
			return err
		}
		return write(buf, e)
	}
	return nil
}

// writeString encodes s with NFC normalization and HTML escaping disabled.
func writeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	out := tmp.Bytes()
	// json.Encoder appends a trailing newline.
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	buf.Write(out)
	return nil
}
