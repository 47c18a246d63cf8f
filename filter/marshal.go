package filter

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/sieveio/sieve/chain"
	"github.com/sieveio/sieve/internal/hexutil"
	"github.com/sieveio/sieve/item"
)

// Filters serialize to a stable JSON form; unmarshalling a marshalled filter
// yields an equivalent tree (same fingerprint), so round-tripping is
// idempotent.

type filterJSON struct {
	Chain string    `json:"chain"`
	Scope string    `json:"scope"`
	Root  *nodeJSON `json:"root"`
}

type nodeJSON struct {
	Op       string      `json:"op"`
	Children []*nodeJSON `json:"children,omitempty"`
	Field    string      `json:"field,omitempty"`
	Cmp      string      `json:"cmp,omitempty"`
	Arg      *valueJSON  `json:"arg,omitempty"`
	Hi       *valueJSON  `json:"hi,omitempty"`
	Sig      string      `json:"signature,omitempty"`
}

type valueJSON struct {
	Type  string       `json:"type"`
	Value string       `json:"value,omitempty"`
	Elems []*valueJSON `json:"elems,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f *Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterJSON{
		Chain: string(f.chain),
		Scope: f.scope.String(),
		Root:  encodeNode(f.root),
	})
}

// Unmarshal reconstructs a frozen filter from its JSON form.
func Unmarshal(data []byte) (*Filter, error) {
	var fj filterJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return nil, fmt.Errorf("filter: unmarshal: %w", err)
	}
	c, err := chain.Parse(fj.Chain)
	if err != nil {
		return nil, err
	}
	scope, err := parseScope(fj.Scope)
	if err != nil {
		return nil, err
	}
	if fj.Root == nil {
		return nil, fmt.Errorf("filter: unmarshal: missing root")
	}
	root, err := decodeNode(fj.Root, scope)
	if err != nil {
		return nil, err
	}
	return &Filter{
		chain: c,
		scope: scope,
		root:  root,
		id:    fingerprint(c, scope, root),
	}, nil
}

func marshalNode(n *Node) ([]byte, error) {
	return json.Marshal(encodeNode(n))
}

func encodeNode(n *Node) *nodeJSON {
	if n == nil {
		return nil
	}
	out := &nodeJSON{Op: n.Op.String()}
	if n.Pred != nil {
		out.Field = n.Pred.Path
		out.Cmp = n.Pred.Op.String()
		out.Arg = encodeValue(n.Pred.Operand)
		if !n.Pred.Hi.IsAbsent() {
			out.Hi = encodeValue(n.Pred.Hi)
		}
		out.Sig = n.Pred.Signature
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, encodeNode(c))
	}
	return out
}

func decodeNode(nj *nodeJSON, scope Scope) (*Node, error) {
	op, err := parseLogicalOp(nj.Op)
	if err != nil {
		return nil, err
	}
	n := &Node{Op: op}
	if op == OpLeaf {
		cmp, err := parseCmp(nj.Cmp)
		if err != nil {
			return nil, err
		}
		pred := Predicate{
			Path:      nj.Field,
			Op:        cmp,
			Operand:   decodeValue(nj.Arg),
			Hi:        decodeValue(nj.Hi),
			Signature: nj.Sig,
		}
		if err := pred.validate(scope); err != nil {
			return nil, err
		}
		n.Pred = &pred
		return n, nil
	}
	if len(nj.Children) == 0 {
		return nil, fmt.Errorf("filter: unmarshal: empty %s group", op)
	}
	for _, cj := range nj.Children {
		c, err := decodeNode(cj, scope)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

func encodeValue(v item.Value) *valueJSON {
	switch v.Type() {
	case item.TypeU64:
		return &valueJSON{Type: "u64", Value: fmt.Sprintf("%d", v.Uint64())}
	case item.TypeU256:
		return &valueJSON{Type: "u256", Value: v.BigInt().String()}
	case item.TypeBytes:
		return &valueJSON{Type: "bytes", Value: hexutil.Encode(v.RawBytes())}
	case item.TypeString:
		return &valueJSON{Type: "string", Value: v.Text()}
	case item.TypeList:
		out := &valueJSON{Type: "list"}
		for _, e := range v.Elems() {
			out.Elems = append(out.Elems, encodeValue(e))
		}
		return out
	default:
		return &valueJSON{Type: "absent"}
	}
}

func decodeValue(vj *valueJSON) item.Value {
	if vj == nil {
		return item.Absent
	}
	switch vj.Type {
	case "u64":
		var n uint64
		fmt.Sscanf(vj.Value, "%d", &n)
		return item.U64(n)
	case "u256":
		n, ok := new(big.Int).SetString(vj.Value, 10)
		if !ok {
			return item.Absent
		}
		return item.U256(n)
	case "bytes":
		b, err := hexutil.Decode(vj.Value)
		if err != nil {
			return item.Absent
		}
		return item.Bytes(b)
	case "string":
		return item.String(vj.Value)
	case "list":
		elems := make([]item.Value, 0, len(vj.Elems))
		for _, e := range vj.Elems {
			elems = append(elems, decodeValue(e))
		}
		return item.List(elems...)
	default:
		return item.Absent
	}
}

func parseScope(s string) (Scope, error) {
	for _, sc := range []Scope{ScopeTransaction, ScopePool, ScopeEvent, ScopeBlockHeader, ScopeChainSpecific} {
		if sc.String() == s {
			return sc, nil
		}
	}
	return 0, fmt.Errorf("filter: unknown scope %q", s)
}

func parseLogicalOp(s string) (LogicalOp, error) {
	for _, op := range []LogicalOp{OpLeaf, OpAnd, OpOr, OpNot, OpXor} {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("filter: unknown op %q", s)
}

func parseCmp(s string) (Cmp, error) {
	for c := CmpEq; c <= CmpNotIn; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("filter: unknown comparison %q", s)
}
