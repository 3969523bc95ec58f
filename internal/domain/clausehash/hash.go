// Package clausehash computes the canonical digest that keys memo entries.
// Two clause expressions that are structurally equal must hash identically
// regardless of key order or whitespace in their JSON encoding.
package clausehash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Sum returns the hex-encoded SHA-256 of the canonical form of clause.
func Sum(clause json.RawMessage) (string, error) {
	canon, err := Canonicalize(clause)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize rewrites a JSON document into its canonical byte form:
// object keys sorted, array elements sorted by their canonical encoding,
// no insignificant whitespace, numbers in shortest round-trip notation.
func Canonicalize(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding clause: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	case json.Number:
		return writeNumber(buf, t)
	case []any:
		elems := make([][]byte, 0, len(t))
		for _, e := range t {
			var eb bytes.Buffer
			if err := writeCanonical(&eb, e); err != nil {
				return err
			}
			elems = append(elems, eb.Bytes())
		}
		// Set operands sort by canonical encoding so operand order in the
		// source document never changes the digest.
		sort.Slice(elems, func(i, j int) bool { return bytes.Compare(elems[i], elems[j]) < 0 })
		buf.WriteByte('[')
		for i, e := range elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(e)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported clause value of type %T", v)
	}
	return nil
}

func writeNumber(buf *bytes.Buffer, n json.Number) error {
	// Integers keep their literal form so 10 and 10.0 stay distinct only
	// when the source distinguishes them numerically.
	if i, err := n.Int64(); err == nil && strconv.FormatInt(i, 10) == n.String() {
		buf.WriteString(n.String())
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("non-finite number %q", n.String())
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
