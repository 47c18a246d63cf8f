package eval

import (
	"strings"

	"github.com/sieveio/sieve/filter"
	"github.com/sieveio/sieve/item"
)

// compare applies one predicate operator to a present value.
func compare(p *filter.Predicate, v item.Value) bool {
	switch p.Op {
	case filter.CmpEq, filter.CmpExact:
		return equal(v, p.Operand)
	case filter.CmpNe:
		return !equal(v, p.Operand)
	case filter.CmpGt:
		c, ok := v.Cmp(p.Operand)
		return ok && c > 0
	case filter.CmpGe:
		c, ok := v.Cmp(p.Operand)
		return ok && c >= 0
	case filter.CmpLt:
		c, ok := v.Cmp(p.Operand)
		return ok && c < 0
	case filter.CmpLe:
		c, ok := v.Cmp(p.Operand)
		return ok && c <= 0
	case filter.CmpBetween:
		lo, okLo := v.Cmp(p.Operand)
		hi, okHi := v.Cmp(p.Hi)
		return okLo && okHi && lo >= 0 && hi <= 0
	case filter.CmpStartsWith:
		return strings.HasPrefix(v.Text(), p.Operand.Text())
	case filter.CmpEndsWith:
		return strings.HasSuffix(v.Text(), p.Operand.Text())
	case filter.CmpContains:
		if v.Type() == item.TypeList {
			return listContains(v, p.Operand)
		}
		return strings.Contains(v.Text(), p.Operand.Text())
	case filter.CmpMatches:
		re := p.Regexp()
		return re != nil && re.MatchString(v.Text())
	case filter.CmpEmpty:
		return v.Type() == item.TypeList && len(v.Elems()) == 0
	case filter.CmpNotEmpty:
		return v.Type() == item.TypeList && len(v.Elems()) > 0
	case filter.CmpNotIn:
		for _, excluded := range p.Operand.Elems() {
			if listContains(v, excluded) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// equal compares a field value with an operand: numerics by magnitude,
// everything else by canonical text.
func equal(v, operand item.Value) bool {
	if v.Type().Numeric() && operand.Type().Numeric() {
		c, _ := v.Cmp(operand)
		return c == 0
	}
	if v.Type().Numeric() != operand.Type().Numeric() {
		return false
	}
	return v.Text() == operand.Text()
}

func listContains(list item.Value, needle item.Value) bool {
	for _, e := range list.Elems() {
		if equal(e, needle) {
			return true
		}
	}
	return false
}
