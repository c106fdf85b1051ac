package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeHashDeterministic(t *testing.T) {
	txs := []Record{{"id": "tx-1", "timestamp": 1000.0, "data": map[string]interface{}{"a": 1.0, "b": 2.0}}}
	b1 := NewBlock(1, 1000.5, txs, "abc")
	b2 := NewBlock(1, 1000.5, txs, "abc")

	assert.Equal(t, b1.Hash, b2.Hash)
	assert.Equal(t, b1.Hash, b1.ComputeHash())
}

func TestComputeHashKeyOrderIndependent(t *testing.T) {
	// Same logical record content built in different insertion orders.
	tx1 := Record{}
	tx1["id"] = "tx-1"
	tx1["timestamp"] = 1000.0
	tx1["data"] = map[string]interface{}{"x": 1.0, "y": 2.0}

	tx2 := Record{}
	tx2["data"] = map[string]interface{}{"y": 2.0, "x": 1.0}
	tx2["timestamp"] = 1000.0
	tx2["id"] = "tx-1"

	b1 := NewBlock(1, 1000.5, []Record{tx1}, "abc")
	b2 := NewBlock(1, 1000.5, []Record{tx2}, "abc")
	assert.Equal(t, b1.Hash, b2.Hash)
}

func TestComputeHashChangesWithContent(t *testing.T) {
	b1 := NewBlock(1, 1000.5, nil, "abc")
	b2 := NewBlock(1, 1000.5, nil, "abd")
	assert.NotEqual(t, b1.Hash, b2.Hash)

	b3 := b1
	b3.Nonce = 7
	assert.NotEqual(t, b1.Hash, b3.ComputeHash())
}

func TestMineMeetsDifficulty(t *testing.T) {
	b := NewBlock(1, 1000.5, []Record{{"id": "tx-1"}}, "abc")
	b.Mine(2)

	assert.True(t, strings.HasPrefix(b.Hash, "00"))
	assert.True(t, b.MeetsDifficulty(2))
	assert.Equal(t, b.Hash, b.ComputeHash())
}

func TestMineDifficultyZeroIsNoOp(t *testing.T) {
	b := NewBlock(1, 1000.5, nil, "abc")
	hash := b.Hash
	b.Mine(0)

	assert.Equal(t, hash, b.Hash)
	assert.Equal(t, int64(0), b.Nonce)
}

func TestBlockCloneIsDeep(t *testing.T) {
	b := NewBlock(1, 1000.5, []Record{{"id": "tx-1", "data": map[string]interface{}{"k": "v"}}}, "abc")
	clone := b.Clone()

	clone.Transactions[0]["id"] = "mutated"
	assert.Equal(t, "tx-1", b.Transactions[0]["id"])
}
