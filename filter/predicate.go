package filter

import (
	"fmt"
	"regexp"

	"github.com/sieveio/sieve/item"
)

// Cmp is a leaf predicate operator.
type Cmp uint8

const (
	CmpEq Cmp = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
	CmpBetween
	CmpStartsWith
	CmpEndsWith
	CmpContains
	CmpExact
	CmpMatches
	CmpEmpty
	CmpNotEmpty
	CmpNotIn
)

// String implements fmt.Stringer.
func (c Cmp) String() string {
	switch c {
	case CmpEq:
		return "eq"
	case CmpNe:
		return "ne"
	case CmpGt:
		return "gt"
	case CmpGe:
		return "ge"
	case CmpLt:
		return "lt"
	case CmpLe:
		return "le"
	case CmpBetween:
		return "between"
	case CmpStartsWith:
		return "starts_with"
	case CmpEndsWith:
		return "ends_with"
	case CmpContains:
		return "contains"
	case CmpExact:
		return "exact"
	case CmpMatches:
		return "matches"
	case CmpEmpty:
		return "empty"
	case CmpNotEmpty:
		return "not_empty"
	case CmpNotIn:
		return "not_in"
	default:
		return "unknown"
	}
}

// numericOnly reports whether the operator orders numbers.
func (c Cmp) numericOnly() bool {
	switch c {
	case CmpGt, CmpGe, CmpLt, CmpLe, CmpBetween:
		return true
	}
	return false
}

// textOnly reports whether the operator requires a textual field.
func (c Cmp) textOnly() bool {
	switch c {
	case CmpStartsWith, CmpEndsWith, CmpExact, CmpMatches:
		return true
	}
	return false
}

// listOnly reports whether the operator requires a list field.
func (c Cmp) listOnly() bool {
	switch c {
	case CmpEmpty, CmpNotEmpty, CmpNotIn:
		return true
	}
	return false
}

// Predicate is a typed leaf condition over one field path.
type Predicate struct {
	// Path is the dotted field path, e.g. "value" or "topics[0]".
	Path string

	// Op is the comparison operator.
	Op Cmp

	// Operand is the comparison argument (the lower bound for between).
	Operand item.Value

	// Hi is the upper bound for between.
	Hi item.Value

	// Signature is the event/function signature a decoded-field predicate
	// was declared under; empty for raw fields.
	Signature string

	re *regexp.Regexp
}

// Regexp returns the compiled pattern for a matches predicate.
func (p *Predicate) Regexp() *regexp.Regexp { return p.re }

// validate checks operand/field compatibility against the declared schema
// for the scope's item kind. Dynamic paths (not in the schema) and decoded
// paths are checked structurally only; their value type is known at decode
// time.
func (p *Predicate) validate(scope Scope) error {
	if p.Path == "" {
		return fmt.Errorf("filter: predicate with empty field path")
	}
	if p.Op == CmpBetween {
		if !p.Operand.Type().Numeric() || !p.Hi.Type().Numeric() {
			return fmt.Errorf("filter: between on %q requires numeric bounds", p.Path)
		}
		lo, hi := p.Operand.BigInt(), p.Hi.BigInt()
		if lo.Cmp(hi) > 0 {
			return fmt.Errorf("filter: between on %q has lo > hi", p.Path)
		}
	}
	if p.Op == CmpMatches {
		re, err := regexp.Compile(p.Operand.Text())
		if err != nil {
			return fmt.Errorf("filter: invalid pattern on %q: %w", p.Path, err)
		}
		p.re = re
	}

	ft, known := item.FieldType(scope.Kind(), p.Path)
	if !known {
		// Dynamic or decoded path: operand consistency only.
		if p.Op.numericOnly() && !p.Operand.Type().Numeric() {
			return fmt.Errorf("filter: %s on dynamic field %q requires a numeric operand", p.Op, p.Path)
		}
		return nil
	}

	switch {
	case p.Op.numericOnly():
		if !ft.Numeric() {
			return fmt.Errorf("filter: %s on %q: field is %s, want numeric", p.Op, p.Path, ft)
		}
		if !p.Operand.Type().Numeric() {
			return fmt.Errorf("filter: %s on %q: operand is %s, want numeric", p.Op, p.Path, p.Operand.Type())
		}
	case p.Op.textOnly():
		if !ft.Textual() {
			return fmt.Errorf("filter: %s on %q: field is %s, want bytes or string", p.Op, p.Path, ft)
		}
	case p.Op.listOnly():
		if ft != item.TypeList {
			return fmt.Errorf("filter: %s on %q: field is %s, want list", p.Op, p.Path, ft)
		}
	case p.Op == CmpContains:
		if !ft.Textual() && ft != item.TypeList {
			return fmt.Errorf("filter: contains on %q: field is %s, want text or list", p.Path, ft)
		}
	case p.Op == CmpEq || p.Op == CmpNe:
		if ft.Numeric() != p.Operand.Type().Numeric() && !p.Operand.IsAbsent() {
			return fmt.Errorf("filter: %s on %q: operand %s does not match field %s", p.Op, p.Path, p.Operand.Type(), ft)
		}
	}
	return nil
}
