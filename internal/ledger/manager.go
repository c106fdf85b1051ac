package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

var (
	ErrAlreadyRunning = errors.New("ledger manager is already running")
	ErrNotRunning     = errors.New("ledger manager is not running")
)

// SystemMiner is the miner address credited by the background auto-miner.
const SystemMiner = "system"

// recordUpdateType tags the update variant of a transaction record.
const recordUpdateType = "update"

// Config represents the ledger manager configuration.
type Config struct {
	// Difficulty is the number of leading zero hex digits a block hash
	// must carry.
	Difficulty int
	// MiningReward is the amount credited to the miner after each block.
	MiningReward float64
	// MineInterval is how often the auto-miner wakes up.
	MineInterval time.Duration
	// MinPending is the pool size that triggers an auto-mine pass.
	MinPending int
}

// DefaultConfig returns the ledger defaults.
func DefaultConfig() Config {
	return Config{
		Difficulty:   4,
		MiningReward: 1.0,
		MineInterval: 10 * time.Second,
		MinPending:   5,
	}
}

// HistoryEntry is one mined transaction with its chain position.
type HistoryEntry struct {
	BlockIndex  int64        `json:"block_index"`
	Timestamp   float64      `json:"timestamp"`
	Transaction types.Record `json:"transaction"`
}

// Manager owns the hash chain and the pending transaction pool. The chain
// only ever grows; blocks are appended in strictly increasing index order
// and never mutated afterwards. All reads hand out deep copies.
type Manager struct {
	mu      sync.RWMutex
	chain   []types.Block
	pending []types.Record

	// mineMu serializes proof-of-work searches so two concurrent mines can
	// never both complete against the same previous hash. It is held for
	// the full search while mu is only taken around the snapshot and the
	// append, keeping RecordTransaction free to run mid-mine.
	mineMu sync.Mutex

	difficulty   int
	miningReward float64
	mineInterval time.Duration
	minPending   int

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a ledger manager with its genesis block already mined.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		difficulty:   cfg.Difficulty,
		miningReward: cfg.MiningReward,
		mineInterval: cfg.MineInterval,
		minPending:   cfg.MinPending,
	}
	m.createGenesisBlock()
	return m
}

// createGenesisBlock seals the index-0 block. It has no predecessor, so its
// previous hash is the fixed genesis marker, but it still satisfies the
// configured proof-of-work target for its own hash.
func (m *Manager) createGenesisBlock() {
	genesis := types.NewBlock(0, types.Now(), []types.Record{}, types.GenesisPreviousHash)
	genesis.Mine(m.difficulty)
	m.chain = append(m.chain, genesis)
}

// RecordTransaction wraps data into a transaction record with a fresh id and
// the current timestamp, appends it to the pending pool and returns the id.
// The only requirement on data is that it survives the canonical encoding.
func (m *Manager) RecordTransaction(data map[string]interface{}) (string, error) {
	return m.appendRecord(data, "")
}

// UpdateTransaction records the update variant of a transaction. The ledger
// is append-only: the update supersedes nothing and history keeps both.
func (m *Manager) UpdateTransaction(data map[string]interface{}) (string, error) {
	return m.appendRecord(data, recordUpdateType)
}

func (m *Manager) appendRecord(data map[string]interface{}, recordType string) (string, error) {
	if _, err := json.Marshal(data); err != nil {
		return "", fmt.Errorf("transaction data is not encodable: %w", err)
	}

	record := types.Record{
		"id":        uuid.New().String(),
		"timestamp": types.Now(),
		"data":      data,
	}
	if recordType != "" {
		record["type"] = recordType
	}

	m.mu.Lock()
	m.pending = append(m.pending, record)
	m.mu.Unlock()

	return record["id"].(string), nil
}

// MineBlock seals the current pending pool into a new block. It returns nil
// when the pool is empty. On success the pool is reset to a single reward
// record crediting minerAddress, plus any records that arrived while the
// proof-of-work search was running.
func (m *Manager) MineBlock(minerAddress string) *types.Block {
	return m.mineBlock(context.Background(), minerAddress)
}

func (m *Manager) mineBlock(ctx context.Context, minerAddress string) *types.Block {
	m.mineMu.Lock()
	defer m.mineMu.Unlock()

	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	snapshot := len(m.pending)
	prev := m.chain[len(m.chain)-1]
	draft := types.NewBlock(prev.Index+1, nextTimestamp(prev.Timestamp), types.CloneRecords(m.pending), prev.Hash)
	m.mu.Unlock()

	// The search runs without holding mu so new transactions keep flowing
	// into the pool; an abandoned search leaves the pool untouched.
	if !m.searchProof(ctx, &draft) {
		return nil
	}

	m.mu.Lock()
	reward := types.Record{
		"from":   "network",
		"to":     minerAddress,
		"amount": m.miningReward,
	}
	m.chain = append(m.chain, draft)
	// Records appended mid-mine sit past the snapshot point; they carry
	// over into the fresh pool instead of being dropped.
	carried := m.pending[snapshot:]
	m.pending = append([]types.Record{reward}, carried...)
	m.mu.Unlock()

	sealed := draft.Clone()
	return &sealed
}

// searchProof runs the nonce search for the draft block, checking for
// cancellation between batches. It reports whether the target was met.
func (m *Manager) searchProof(ctx context.Context, draft *types.Block) bool {
	for !draft.MeetsDifficulty(m.difficulty) {
		for i := 0; i < 4096 && !draft.MeetsDifficulty(m.difficulty); i++ {
			draft.Nonce++
			draft.Hash = draft.ComputeHash()
		}
		select {
		case <-ctx.Done():
			return draft.MeetsDifficulty(m.difficulty)
		default:
		}
	}
	return true
}

// nextTimestamp keeps block timestamps strictly increasing even when two
// blocks are sealed within clock resolution of each other.
func nextTimestamp(prev float64) float64 {
	ts := types.Now()
	if ts <= prev {
		ts = prev + 1e-6
	}
	return ts
}

// GetLatestBlock returns a copy of the last block. The chain is never empty.
func (m *Manager) GetLatestBlock() types.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chain[len(m.chain)-1].Clone()
}

// Chain returns a deep copy of the full chain.
func (m *Manager) Chain() []types.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.CloneChain(m.chain)
}

// PendingTransactions returns a deep copy of the pending pool.
func (m *Manager) PendingTransactions() []types.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.CloneRecords(m.pending)
}

// ChainLength returns the number of blocks in the chain.
func (m *Manager) ChainLength() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chain)
}

// IsChainValid walks the chain from index 1 and verifies each block's hash
// against a recomputation and its link to the predecessor. The proof-of-work
// target is not re-checked here; full audits go through ChainValidator.
func (m *Manager) IsChainValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := 1; i < len(m.chain); i++ {
		current := &m.chain[i]
		previous := &m.chain[i-1]

		if current.Hash != current.ComputeHash() {
			return false
		}
		if current.PreviousHash != previous.Hash {
			return false
		}
	}
	return true
}

// GetTransactionHistory scans every mined block in chain order. With a
// non-empty transactionID it returns only records whose id field matches;
// otherwise it returns every transaction ever mined.
func (m *Manager) GetTransactionHistory(transactionID string) []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var history []HistoryEntry
	for _, block := range m.chain {
		for _, tx := range block.Transactions {
			if transactionID != "" {
				id, _ := tx["id"].(string)
				if id != transactionID {
					continue
				}
			}
			history = append(history, HistoryEntry{
				BlockIndex:  block.Index,
				Timestamp:   block.Timestamp,
				Transaction: tx.Clone(),
			})
		}
	}
	return history
}

// Start launches the background auto-miner. Mining stays advisory batching:
// manual MineBlock calls remain valid while the auto-miner runs.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.autoMine(m.ctx)
	}()
	return nil
}

// Stop cancels the auto-miner and waits for it to exit. An in-progress
// proof-of-work search is abandoned; its pending transactions stay pending.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// autoMine wakes on a fixed interval and seals a block whenever the pool has
// reached the configured minimum size.
func (m *Manager) autoMine(ctx context.Context) {
	ticker := time.NewTicker(m.mineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			ready := len(m.pending) >= m.minPending
			m.mu.RUnlock()
			if !ready {
				continue
			}
			if block := m.mineBlock(ctx, SystemMiner); block != nil {
				log.Printf("ledger: auto-mined block %d with %d transactions", block.Index, len(block.Transactions))
			}
		}
	}
}
