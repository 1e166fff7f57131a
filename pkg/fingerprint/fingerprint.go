// Package fingerprint defines the content fingerprints stored in manifest
// records and the strategies that compute them.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tags which strategy produced a Fingerprint
type Kind int

const (
	KindNone Kind = iota
	KindSize
	KindWeak
	KindStrong
)

// String returns the strategy name that produces fingerprints of this kind
func (k Kind) String() string {
	switch k {
	case KindNone:
		return StrategyNone
	case KindSize:
		return StrategySize
	case KindWeak:
		return StrategySimple
	case KindStrong:
		return StrategyStrong
	default:
		return "unknown"
	}
}

// Fingerprint is a tagged value: nothing, an integer (size or weak
// checksum) or a hex digest. The zero value is None.
type Fingerprint struct {
	kind   Kind
	num    int64
	digest string
}

// None returns the empty fingerprint
func None() Fingerprint {
	return Fingerprint{kind: KindNone}
}

// Size returns a fingerprint holding a byte count
func Size(n int64) Fingerprint {
	return Fingerprint{kind: KindSize, num: n}
}

// Weak returns a fingerprint holding a rolling checksum
func Weak(sum uint32) Fingerprint {
	return Fingerprint{kind: KindWeak, num: int64(sum)}
}

// Strong returns a fingerprint holding a hex digest
func Strong(hexDigest string) Fingerprint {
	return Fingerprint{kind: KindStrong, digest: hexDigest}
}

// Kind returns the variant tag
func (f Fingerprint) Kind() Kind {
	return f.kind
}

// Int returns the integer payload. Valid for KindSize and KindWeak.
func (f Fingerprint) Int() int64 {
	return f.num
}

// Digest returns the hex payload. Valid for KindStrong.
func (f Fingerprint) Digest() string {
	return f.digest
}

// IsNone reports whether f carries no value
func (f Fingerprint) IsNone() bool {
	return f.kind == KindNone
}

// Equal reports whether f and g are the same variant with the same payload.
// Two None fingerprints are equal.
func (f Fingerprint) Equal(g Fingerprint) bool {
	if f.kind != g.kind {
		return false
	}
	switch f.kind {
	case KindSize, KindWeak:
		return f.num == g.num
	case KindStrong:
		return f.digest == g.digest
	default:
		return true
	}
}

// String renders the payload the way it appears on the wire
func (f Fingerprint) String() string {
	switch f.kind {
	case KindSize, KindWeak:
		return strconv.FormatInt(f.num, 10)
	case KindStrong:
		return f.digest
	default:
		return "null"
	}
}

// MarshalJSON encodes None as null, integer kinds as numbers and digests as strings
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case KindSize, KindWeak:
		return []byte(strconv.FormatInt(f.num, 10)), nil
	case KindStrong:
		return json.Marshal(f.digest)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes null, integers and strings. Integers decode as
// KindWeak; use Decode to pick another integer kind.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data, KindWeak)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// Decode parses a raw JSON checksum value. intKind is the kind assigned to
// integer values, since the wire format does not say whether an integer
// is a size or a rolling checksum.
func Decode(data []byte, intKind Kind) (Fingerprint, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return None(), nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Fingerprint{}, fmt.Errorf("decode digest: %w", err)
		}
		return Strong(s), nil
	default:
		if intKind != KindSize && intKind != KindWeak {
			return Fingerprint{}, fmt.Errorf("integer kind must be size or simple, got %s", intKind)
		}
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("decode integer checksum %s: %w", data, err)
		}
		return Fingerprint{kind: intKind, num: n}, nil
	}
}
