package marketplace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lunar-bby/AgoraAI/internal/ledger"
	"github.com/lunar-bby/AgoraAI/internal/registry"
	"github.com/lunar-bby/AgoraAI/internal/types"
)

var (
	ErrNoProvider          = errors.New("no provider available for service type")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrProviderNotFound    = errors.New("provider not found")
)

// Transaction is one service exchange between a requester and a provider.
type Transaction struct {
	ID          string
	RequesterID string
	ProviderID  string
	ServiceType string
	Status      string
	CreatedAt   float64
	CompletedAt float64
	Amount      float64
	Metadata    map[string]interface{}
}

func (t Transaction) toData() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": t.ID,
		"requester_id":   t.RequesterID,
		"provider_id":    t.ProviderID,
		"service_type":   t.ServiceType,
		"status":         t.Status,
		"created_at":     t.CreatedAt,
		"completed_at":   t.CompletedAt,
		"amount":         t.Amount,
		"metadata":       t.Metadata,
	}
}

// Marketplace matches service requests to providers and journals every
// exchange on the ledger.
type Marketplace struct {
	registry *registry.Registry
	ledger   *ledger.Manager

	mu      sync.Mutex
	active  map[string]*Transaction
	history []*Transaction
}

// NewMarketplace creates a marketplace over the given registry and ledger.
func NewMarketplace(reg *registry.Registry, led *ledger.Manager) *Marketplace {
	return &Marketplace{
		registry: reg,
		ledger:   led,
		active:   make(map[string]*Transaction),
	}
}

// RequestService matches a requirement against the registered providers of
// serviceType and opens a transaction with the best one. The highest
// reputation score wins; ties go to the provider registered first.
func (m *Marketplace) RequestService(requesterID, serviceType string, requirements map[string]interface{}) (string, error) {
	providers := m.registry.GetAgentsByCapability(serviceType)
	provider := selectBestProvider(providers)
	if provider == nil {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, serviceType)
	}

	tx := &Transaction{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		ProviderID:  provider.ID(),
		ServiceType: serviceType,
		Status:      "pending",
		CreatedAt:   types.Now(),
		Metadata:    requirements,
	}

	m.mu.Lock()
	m.active[tx.ID] = tx
	m.mu.Unlock()

	if _, err := m.ledger.RecordTransaction(tx.toData()); err != nil {
		return "", fmt.Errorf("failed to record transaction: %w", err)
	}
	return tx.ID, nil
}

// ExecuteTransaction runs an open transaction against its provider. The
// outcome, success or failure, is journaled as a ledger update.
func (m *Marketplace) ExecuteTransaction(transactionID string) (map[string]interface{}, error) {
	m.mu.Lock()
	tx, ok := m.active[transactionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrTransactionNotFound
	}

	provider, ok := m.registry.GetAgent(tx.ProviderID)
	if !ok {
		return nil, ErrProviderNotFound
	}

	result, err := provider.HandleRequest(tx.Metadata)
	if err != nil {
		m.mu.Lock()
		tx.Status = "failed"
		m.mu.Unlock()
		if _, recordErr := m.ledger.UpdateTransaction(tx.toData()); recordErr != nil {
			return nil, recordErr
		}
		return nil, fmt.Errorf("provider %s failed: %w", tx.ProviderID, err)
	}

	m.mu.Lock()
	tx.Status = "completed"
	tx.CompletedAt = types.Now()
	m.history = append(m.history, tx)
	delete(m.active, transactionID)
	m.mu.Unlock()

	if _, err := m.ledger.UpdateTransaction(tx.toData()); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransactionStatus reports the status of an active or completed
// transaction.
func (m *Marketplace) GetTransactionStatus(transactionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx, ok := m.active[transactionID]; ok {
		return tx.Status, true
	}
	for _, tx := range m.history {
		if tx.ID == transactionID {
			return tx.Status, true
		}
	}
	return "", false
}

// GetAgentTransactions returns the completed transactions an agent took part
// in, on either side.
func (m *Marketplace) GetAgentTransactions(agentID string) []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transaction
	for _, tx := range m.history {
		if tx.RequesterID == agentID || tx.ProviderID == agentID {
			out = append(out, *tx)
		}
	}
	return out
}

// selectBestProvider picks the highest-scoring provider. Strict comparison
// keeps the first-seen provider on ties.
func selectBestProvider(providers []registry.Agent) registry.Agent {
	var best registry.Agent
	for _, p := range providers {
		if best == nil || p.ReputationScore() > best.ReputationScore() {
			best = p
		}
	}
	return best
}
