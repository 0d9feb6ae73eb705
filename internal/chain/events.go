package chain

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Log is one event entry from a transaction receipt.
type Log struct {
	Address string
	Topics  []string
	Data    []byte
}

// Receipt is the decoded confirmation record of a mined transaction.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
	Logs        []Log
}

// Succeeded reports whether the ledger executed the transaction without revert.
func (r *Receipt) Succeeded() bool { return r.Status == 1 }

// EventABI identifies a typed contract event by its canonical signature,
// e.g. "PoolCreated(uint256,address,uint8)". The first topic of a matching
// log equals the Keccak-256 hash of that signature.
type EventABI struct {
	Name   string
	topic0 string
}

func NewEventABI(signature string) EventABI {
	name := signature
	if idx := strings.IndexByte(signature, '('); idx > 0 {
		name = signature[:idx]
	}
	return EventABI{
		Name:   name,
		topic0: encodeHex(Keccak256([]byte(signature))),
	}
}

// DecodedEvent is one successfully matched log, split into indexed topics and
// 32-byte data words.
type DecodedEvent struct {
	Name    string
	Address string
	Topics  []string
	words   [][]byte
}

// WordUint64 returns data word i as a uint64.
func (e *DecodedEvent) WordUint64(i int) (uint64, error) {
	word, err := e.word(i)
	if err != nil {
		return 0, err
	}
	value := new(big.Int).SetBytes(word)
	if !value.IsUint64() {
		return 0, fmt.Errorf("event %s word %d does not fit in uint64", e.Name, i)
	}
	return value.Uint64(), nil
}

// WordBigInt returns data word i as a big integer.
func (e *DecodedEvent) WordBigInt(i int) (*big.Int, error) {
	word, err := e.word(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word), nil
}

// WordAddress returns data word i as a 0x-prefixed address.
func (e *DecodedEvent) WordAddress(i int) (string, error) {
	word, err := e.word(i)
	if err != nil {
		return "", err
	}
	return encodeHex(word[12:]), nil
}

// TopicAddress returns indexed topic i (1-based; topic 0 is the signature)
// as a 0x-prefixed address.
func (e *DecodedEvent) TopicAddress(i int) (string, error) {
	if i < 1 || i >= len(e.Topics) {
		return "", fmt.Errorf("event %s has no topic %d", e.Name, i)
	}
	raw, err := decodeHex(e.Topics[i])
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("event %s topic %d is not a 32-byte word", e.Name, i)
	}
	return encodeHex(raw[12:]), nil
}

// TopicUint64 returns indexed topic i as a uint64.
func (e *DecodedEvent) TopicUint64(i int) (uint64, error) {
	if i < 1 || i >= len(e.Topics) {
		return 0, fmt.Errorf("event %s has no topic %d", e.Name, i)
	}
	raw, err := decodeHex(e.Topics[i])
	if err != nil {
		return 0, fmt.Errorf("event %s topic %d is not hex: %w", e.Name, i, err)
	}
	value := new(big.Int).SetBytes(raw)
	if !value.IsUint64() {
		return 0, fmt.Errorf("event %s topic %d does not fit in uint64", e.Name, i)
	}
	return value.Uint64(), nil
}

func (e *DecodedEvent) word(i int) ([]byte, error) {
	if i < 0 || i >= len(e.words) {
		return nil, fmt.Errorf("event %s has no data word %d", e.Name, i)
	}
	return e.words[i], nil
}

// DecodeLog attempts to decode a single log against this event shape. The
// second return value is false for a non-matching log; that is not an error.
func (a EventABI) DecodeLog(l Log) (*DecodedEvent, bool) {
	if len(l.Topics) == 0 || !strings.EqualFold(l.Topics[0], a.topic0) {
		return nil, false
	}
	if len(l.Data)%32 != 0 {
		return nil, false
	}
	words := make([][]byte, 0, len(l.Data)/32)
	for i := 0; i < len(l.Data); i += 32 {
		words = append(words, l.Data[i:i+32])
	}
	return &DecodedEvent{
		Name:    a.Name,
		Address: l.Address,
		Topics:  l.Topics,
		words:   words,
	}, true
}

// FindEvent scans a receipt's logs and keeps the first successful match.
func FindEvent(receipt *Receipt, abi EventABI) (*DecodedEvent, bool) {
	for _, l := range receipt.Logs {
		if decoded, ok := abi.DecodeLog(l); ok {
			return decoded, true
		}
	}
	return nil, false
}

// Keccak256 hashes data with the ledger's Keccak-256.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
