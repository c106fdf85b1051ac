package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// GenesisPreviousHash is the previous-hash marker carried by the genesis block.
const GenesisPreviousHash = "0"

// Block represents one sealed unit of the ledger. A block is built in draft
// form with Nonce 0, mutated only by the proof-of-work search, and becomes
// immutable once appended to a chain.
type Block struct {
	Index        int64    `json:"index"`
	Timestamp    float64  `json:"timestamp"`
	Transactions []Record `json:"transactions"`
	PreviousHash string   `json:"previous_hash"`
	Nonce        int64    `json:"nonce"`
	Hash         string   `json:"hash"`
}

// NewBlock creates a draft block with its hash computed from the given fields.
func NewBlock(index int64, timestamp float64, transactions []Record, previousHash string) Block {
	b := Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: transactions,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash returns the SHA-256 hex digest of the block's content fields.
// The fields are serialized as JSON, which sorts all map keys, so the digest
// depends only on logical content and never on construction order.
func (b *Block) ComputeHash() string {
	payload := map[string]interface{}{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  b.Transactions,
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Records are validated as encodable before they reach a block.
		panic("types: block content is not canonically encodable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Mine runs the proof-of-work search: the nonce is incremented and the hash
// recomputed until it carries the required number of leading zero hex digits.
func (b *Block) Mine(difficulty int) {
	target := strings.Repeat("0", difficulty)
	for !strings.HasPrefix(b.Hash, target) {
		b.Nonce++
		b.Hash = b.ComputeHash()
	}
}

// MeetsDifficulty reports whether the block's hash satisfies the
// proof-of-work target.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	return strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty))
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := b
	out.Transactions = CloneRecords(b.Transactions)
	return out
}

// CloneChain deep-copies a slice of blocks.
func CloneChain(chain []Block) []Block {
	out := make([]Block, len(chain))
	for i, b := range chain {
		out[i] = b.Clone()
	}
	return out
}
