package item

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// Type classifies the semantic type of a field or operand.
type Type uint8

const (
	TypeAbsent Type = iota
	TypeU64
	TypeU256
	TypeBytes // addresses, hashes, raw byte strings
	TypeString
	TypeList
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeAbsent:
		return "absent"
	case TypeU64:
		return "u64"
	case TypeU256:
		return "u256"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

// Numeric reports whether the type supports ordering comparisons.
func (t Type) Numeric() bool { return t == TypeU64 || t == TypeU256 }

// Textual reports whether the type supports string operations.
func (t Type) Textual() bool { return t == TypeBytes || t == TypeString }

// Value is the tagged union produced by field accessors and carried by
// predicate operands. The zero Value is absent.
type Value struct {
	typ Type
	u64 uint64
	big *big.Int
	b   []byte
	s   string
	l   []Value
}

// Absent is the missing-field value.
var Absent = Value{}

// U64 wraps a uint64.
func U64(v uint64) Value { return Value{typ: TypeU64, u64: v} }

// U256 wraps an unsigned big integer. A nil input is absent.
func U256(v *big.Int) Value {
	if v == nil {
		return Absent
	}
	return Value{typ: TypeU256, big: v}
}

// Bytes wraps a byte string (address, hash or arbitrary bytes).
func Bytes(b []byte) Value { return Value{typ: TypeBytes, b: b} }

// String wraps a string.
func String(s string) Value { return Value{typ: TypeString, s: s} }

// List wraps a list of values.
func List(vs ...Value) Value { return Value{typ: TypeList, l: vs} }

// Type returns the value's semantic type.
func (v Value) Type() Type { return v.typ }

// IsAbsent reports whether the value is missing.
func (v Value) IsAbsent() bool { return v.typ == TypeAbsent }

// Uint64 returns the u64 payload. Only meaningful for TypeU64.
func (v Value) Uint64() uint64 { return v.u64 }

// BigInt returns the value as an unsigned big integer, widening u64.
// Returns nil for non-numeric values.
func (v Value) BigInt() *big.Int {
	switch v.typ {
	case TypeU64:
		return new(big.Int).SetUint64(v.u64)
	case TypeU256:
		return v.big
	default:
		return nil
	}
}

// RawBytes returns the byte payload. Only meaningful for TypeBytes.
func (v Value) RawBytes() []byte { return v.b }

// Elems returns the list payload. Only meaningful for TypeList.
func (v Value) Elems() []Value { return v.l }

// Text returns the representation used by string operations: byte values
// render as lower-cased hex without the "0x" prefix, strings are passed
// through unchanged.
func (v Value) Text() string {
	switch v.typ {
	case TypeBytes:
		return hex.EncodeToString(v.b)
	case TypeString:
		return v.s
	default:
		return ""
	}
}

// NormalizeText canonicalizes an operand for comparison against Text():
// hex-looking operands are lower-cased and stripped of their 0x prefix.
func NormalizeText(s string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed != s || isHex(trimmed) {
		return strings.ToLower(trimmed)
	}
	return s
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		// Numeric values compare across widths.
		if v.typ.Numeric() && o.typ.Numeric() {
			return v.BigInt().Cmp(o.BigInt()) == 0
		}
		return false
	}
	switch v.typ {
	case TypeAbsent:
		return true
	case TypeU64:
		return v.u64 == o.u64
	case TypeU256:
		return v.big.Cmp(o.big) == 0
	case TypeBytes:
		return v.Text() == o.Text()
	case TypeString:
		return v.s == o.s
	case TypeList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Cmp orders two numeric values: -1, 0 or +1. The second return is false
// when either side is not numeric.
func (v Value) Cmp(o Value) (int, bool) {
	if !v.typ.Numeric() || !o.typ.Numeric() {
		return 0, false
	}
	if v.typ == TypeU64 && o.typ == TypeU64 {
		switch {
		case v.u64 < o.u64:
			return -1, true
		case v.u64 > o.u64:
			return 1, true
		default:
			return 0, true
		}
	}
	return v.BigInt().Cmp(o.BigInt()), true
}
