package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"settlement-service/internal/chain"
)

// CallBuilder assembles calldata for a contract function: the 4-byte
// Keccak-256 selector of the canonical signature followed by the arguments
// packed into 32-byte words.
type CallBuilder struct {
	data []byte
	err  error
}

func NewCall(signature string) *CallBuilder {
	return &CallBuilder{data: chain.Keccak256([]byte(signature))[:4]}
}

func (b *CallBuilder) word(w [32]byte) *CallBuilder {
	if b.err == nil {
		b.data = append(b.data, w[:]...)
	}
	return b
}

// Uint256 appends an unsigned big integer argument.
func (b *CallBuilder) Uint256(v *big.Int) *CallBuilder {
	if b.err != nil {
		return b
	}
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		b.err = fmt.Errorf("value %s does not fit in uint256", v)
		return b
	}
	var w [32]byte
	v.FillBytes(w[:])
	return b.word(w)
}

// Uint64 appends a small unsigned integer argument.
func (b *CallBuilder) Uint64(v uint64) *CallBuilder {
	return b.Uint256(new(big.Int).SetUint64(v))
}

// Address appends a 20-byte address argument.
func (b *CallBuilder) Address(addr string) *CallBuilder {
	if b.err != nil {
		return b
	}
	raw, err := decodeAddress(addr)
	if err != nil {
		b.err = err
		return b
	}
	var w [32]byte
	copy(w[12:], raw)
	return b.word(w)
}

// Bool appends a boolean argument.
func (b *CallBuilder) Bool(v bool) *CallBuilder {
	var w [32]byte
	if v {
		w[31] = 1
	}
	return b.word(w)
}

// Bytes32 appends a fixed 32-byte argument.
func (b *CallBuilder) Bytes32(v [32]byte) *CallBuilder {
	return b.word(v)
}

// Build returns the assembled calldata.
func (b *CallBuilder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, fmt.Errorf("failed to build calldata: %w", b.err)
	}
	return b.data, nil
}

func decodeAddress(addr string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if len(trimmed) != 40 {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	raw := make([]byte, 20)
	for i := 0; i < 20; i++ {
		hi, ok1 := hexNibble(trimmed[2*i])
		lo, ok2 := hexNibble(trimmed[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("invalid address %q", addr)
		}
		raw[i] = hi<<4 | lo
	}
	return raw, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}
