package decoder

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/sieveio/sieve/item"
)

// SignatureHash computes the Keccak-256 hash of a canonical signature.
func SignatureHash(sig string) item.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	var out item.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Selector computes the 4-byte function selector of a canonical signature.
func Selector(sig string) [4]byte {
	h := SignatureHash(sig)
	var sel [4]byte
	copy(sel[:], h[:4])
	return sel
}

// parsedSig is a parsed Solidity event or function signature.
type parsedSig struct {
	Name   string
	Params []parsedParam
}

type parsedParam struct {
	Type    string
	Name    string
	Indexed bool
}

// Canonical returns the canonical signature string,
// e.g. "Transfer(address,address,uint256)".
func (p *parsedSig) Canonical() string {
	types := make([]string, len(p.Params))
	for i, param := range p.Params {
		types[i] = param.Type
	}
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(types, ","))
}

// parseSignature parses a Solidity signature string.
// Supported formats:
//   - "Transfer(address,address,uint256)"
//   - "Transfer(address indexed from, address indexed to, uint256 value)"
func parseSignature(sig string) (*parsedSig, error) {
	sig = strings.TrimSpace(sig)

	parenOpen := strings.IndexByte(sig, '(')
	parenClose := strings.LastIndexByte(sig, ')')
	if parenOpen < 0 || parenClose < 0 || parenClose <= parenOpen {
		return nil, fmt.Errorf("decoder: malformed signature: %q", sig)
	}

	name := strings.TrimSpace(sig[:parenOpen])
	if name == "" {
		return nil, fmt.Errorf("decoder: empty name in signature: %q", sig)
	}

	paramsStr := strings.TrimSpace(sig[parenOpen+1 : parenClose])
	if paramsStr == "" {
		return &parsedSig{Name: name}, nil
	}

	parts := splitParams(paramsStr)
	params := make([]parsedParam, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		p, err := parseParam(part)
		if err != nil {
			return nil, fmt.Errorf("decoder: %w in signature %q", err, sig)
		}
		params = append(params, p)
	}

	return &parsedSig{Name: name, Params: params}, nil
}

func parseParam(s string) (parsedParam, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return parsedParam{}, fmt.Errorf("empty parameter")
	}

	var p parsedParam
	p.Type = tokens[0]

	for i := 1; i < len(tokens); i++ {
		if tokens[i] == "indexed" {
			p.Indexed = true
		} else {
			p.Name = tokens[i]
		}
	}

	return p, nil
}

// splitParams splits a parameter list string, respecting nested parentheses.
func splitParams(s string) []string {
	var parts []string
	depth := 0
	start := 0

	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
