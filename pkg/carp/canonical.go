// Package carp implements the Context & Action Resolution Protocol envelope
// and the canonical-JSON hashing helpers shared by the resolver and executor.
package carp

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

// Canonicalize renders v as canonical JSON: object keys sorted
// lexicographically, no insignificant whitespace, and numeric forms
// normalized so integral floats are written without a trailing ".0".
//
// v must already be JSON-shaped (the result of json.Unmarshal into
// map[string]any/[]any/primitives, or a value convertible to that shape via
// json.Marshal/Unmarshal round-trip).
func Canonicalize(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return encode(normalized)
}

// normalize converts v into a tree of map[string]any / []any / primitives,
// going through a JSON round-trip so struct values and map[string]any behave
// identically.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("carp: marshal for canonicalization: %w", err)
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("carp: decode for canonicalization: %w", err)
	}
	return decoded, nil
}

func encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return encodeNumber(t)
	case string:
		b, err := json.Marshal(t)
		return b, err
	case []any:
		return encodeArray(t)
	case map[string]any:
		return encodeObject(t)
	default:
		// Fallback for values that escaped the json.Number round-trip
		// (shouldn't normally happen given normalize always uses UseNumber).
		b, err := json.Marshal(t)
		return b, err
	}
}

func encodeNumber(n json.Number) ([]byte, error) {
	if i, err := n.Int64(); err == nil {
		return []byte(strconv.FormatInt(i, 10)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("carp: invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("carp: non-finite number %q", n.String())
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return []byte(strconv.FormatInt(int64(f), 10)), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func encodeArray(arr []any) ([]byte, error) {
	out := []byte{'['}
	for i, el := range arr {
		if i > 0 {
			out = append(out, ',')
		}
		enc, err := encode(el)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	out = append(out, ']')
	return out, nil
}

func encodeObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, keyJSON...)
		out = append(out, ':')
		valJSON, err := encode(obj[k])
		if err != nil {
			return nil, err
		}
		out = append(out, valJSON...)
	}
	out = append(out, '}')
	return out, nil
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical JSON form.
func Hash(v any) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
