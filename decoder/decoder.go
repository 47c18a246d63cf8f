// Package decoder turns raw calldata and event log payloads into named,
// typed parameters using registered Solidity signatures. Decoding happens
// only when a filter predicate actually needs a decoded field, and results
// are memoized in a bounded per-chain cache.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/sieveio/sieve/item"
)

// ErrUnknownSignature is returned when no registered signature matches the
// payload's selector or topic0.
var ErrUnknownSignature = errors.New("decoder: unknown signature")

// ErrMalformed is returned when a payload cannot be unpacked against its
// matched signature.
var ErrMalformed = errors.New("decoder: malformed payload")

// Decoded is the result of decoding one payload.
type Decoded struct {
	// Name is the event or function name, e.g. "Transfer".
	Name string

	// Params holds the decoded arguments keyed by parameter name.
	Params map[string]item.Value
}

// Param returns the decoded value for name, or Absent.
func (d *Decoded) Param(name string) item.Value {
	if v, ok := d.Params[name]; ok {
		return v
	}
	return item.Absent
}

// Decoder decodes calldata and log payloads against registered signatures.
type Decoder interface {
	// RegisterEvent registers a Solidity event signature,
	// e.g. "Transfer(address indexed from,address indexed to,uint256 value)".
	RegisterEvent(signature string) error

	// RegisterFunction registers a function signature,
	// e.g. "transfer(address to,uint256 value)".
	RegisterFunction(signature string) error

	// DecodeLog decodes a log against the registered event matching topic0.
	DecodeLog(l *item.Log) (*Decoded, error)

	// DecodeCalldata decodes transaction input against the registered
	// function matching its 4-byte selector.
	DecodeCalldata(input []byte) (*Decoded, error)
}

type eventDef struct {
	name    string
	sigHash item.Hash
	args    abi.Arguments
}

type funcDef struct {
	name     string
	selector [4]byte
	args     abi.Arguments
}

// ABIDecoder is the go-ethereum-backed Decoder implementation.
type ABIDecoder struct {
	mu     sync.RWMutex
	events map[item.Hash]*eventDef
	funcs  map[[4]byte]*funcDef
}

// NewABIDecoder creates an empty decoder.
func NewABIDecoder() *ABIDecoder {
	return &ABIDecoder{
		events: make(map[item.Hash]*eventDef),
		funcs:  make(map[[4]byte]*funcDef),
	}
}

// RegisterEvent implements Decoder.
func (d *ABIDecoder) RegisterEvent(signature string) error {
	parsed, args, err := buildArguments(signature)
	if err != nil {
		return err
	}
	def := &eventDef{
		name:    parsed.Name,
		sigHash: SignatureHash(parsed.Canonical()),
		args:    args,
	}
	d.mu.Lock()
	d.events[def.sigHash] = def
	d.mu.Unlock()
	return nil
}

// RegisterFunction implements Decoder.
func (d *ABIDecoder) RegisterFunction(signature string) error {
	parsed, args, err := buildArguments(signature)
	if err != nil {
		return err
	}
	def := &funcDef{
		name:     parsed.Name,
		selector: Selector(parsed.Canonical()),
		args:     args,
	}
	d.mu.Lock()
	d.funcs[def.selector] = def
	d.mu.Unlock()
	return nil
}

func buildArguments(signature string) (*parsedSig, abi.Arguments, error) {
	parsed, err := parseSignature(signature)
	if err != nil {
		return nil, nil, err
	}
	args := make(abi.Arguments, len(parsed.Params))
	for i, p := range parsed.Params {
		typ, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, nil, fmt.Errorf("decoder: type %q in %q: %w", p.Type, signature, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		args[i] = abi.Argument{Name: name, Type: typ, Indexed: p.Indexed}
	}
	return parsed, args, nil
}

// DecodeLog implements Decoder. Indexed parameters come from topics[1:],
// the rest from the ABI-encoded data section.
func (d *ABIDecoder) DecodeLog(l *item.Log) (*Decoded, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrMalformed)
	}
	d.mu.RLock()
	def, ok := d.events[l.Topics[0]]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: topic0 %s", ErrUnknownSignature, l.Topics[0].Hex())
	}

	out := &Decoded{Name: def.name, Params: make(map[string]item.Value)}

	topicIdx := 1
	for _, arg := range def.args {
		if !arg.Indexed {
			continue
		}
		if topicIdx >= len(l.Topics) {
			return nil, fmt.Errorf("%w: missing topic for %s", ErrMalformed, arg.Name)
		}
		out.Params[arg.Name] = topicValue(arg.Type, l.Topics[topicIdx])
		topicIdx++
	}

	nonIndexed := def.args.NonIndexed()
	if len(nonIndexed) > 0 {
		values, err := nonIndexed.UnpackValues(l.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for i, arg := range nonIndexed {
			out.Params[arg.Name] = abiValue(values[i])
		}
	}
	return out, nil
}

// DecodeCalldata implements Decoder.
func (d *ABIDecoder) DecodeCalldata(input []byte) (*Decoded, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: calldata shorter than a selector", ErrMalformed)
	}
	var sel [4]byte
	copy(sel[:], input[:4])

	d.mu.RLock()
	def, ok := d.funcs[sel]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: selector %x", ErrUnknownSignature, sel)
	}

	values, err := def.args.UnpackValues(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := &Decoded{Name: def.name, Params: make(map[string]item.Value)}
	for i, arg := range def.args {
		out.Params[arg.Name] = abiValue(values[i])
	}
	return out, nil
}

// topicValue converts a 32-byte topic into a Value per its declared type.
func topicValue(typ abi.Type, topic item.Hash) item.Value {
	switch typ.T {
	case abi.AddressTy:
		return item.Bytes(topic[12:32])
	case abi.UintTy, abi.IntTy:
		return item.U256(new(big.Int).SetBytes(topic[:]))
	case abi.BoolTy:
		if topic[31] != 0 {
			return item.String("true")
		}
		return item.String("false")
	default:
		// Dynamic indexed types are stored as their hash; expose the bytes.
		return item.Bytes(topic[:])
	}
}

// abiValue converts a go-ethereum unpacked value into a Value.
func abiValue(v any) item.Value {
	switch val := v.(type) {
	case common.Address:
		return item.Bytes(val.Bytes())
	case *big.Int:
		return item.U256(val)
	case bool:
		if val {
			return item.String("true")
		}
		return item.String("false")
	case string:
		return item.String(val)
	case []byte:
		return item.Bytes(val)
	case [32]byte:
		return item.Bytes(val[:])
	case uint8:
		return item.U64(uint64(val))
	case uint16:
		return item.U64(uint64(val))
	case uint32:
		return item.U64(uint64(val))
	case uint64:
		return item.U64(val)
	default:
		return item.Absent
	}
}
