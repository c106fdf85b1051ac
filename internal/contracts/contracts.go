package contracts

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

// State represents a service contract lifecycle state.
type State int

const (
	StatePending State = iota
	StateActive
	StateCompleted
	StateCancelled
	StateDisputed
)

var stateNames = map[State]string{
	StatePending:   "PENDING",
	StateActive:    "ACTIVE",
	StateCompleted: "COMPLETED",
	StateCancelled: "CANCELLED",
	StateDisputed:  "DISPUTED",
}

// String returns the state's wire name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown contract state: %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes the state from its wire name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range stateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown contract state: %q", name)
}

// validTransitions is the fixed lifecycle graph. COMPLETED and CANCELLED are
// terminal.
var validTransitions = map[State][]State{
	StatePending:   {StateActive, StateCancelled},
	StateActive:    {StateCompleted, StateDisputed},
	StateDisputed:  {StateCompleted, StateCancelled},
	StateCompleted: {},
	StateCancelled: {},
}

// ValidateStateTransition reports whether moving from current to next is an
// edge of the lifecycle graph. Any transition not in the table is rejected.
func ValidateStateTransition(current, next State) bool {
	for _, allowed := range validTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ServiceContract represents an agreement between a provider and a consumer
// for one service type.
type ServiceContract struct {
	ContractID    string                 `json:"contract_id"`
	ProviderID    string                 `json:"provider_id"`
	ConsumerID    string                 `json:"consumer_id"`
	ServiceType   string                 `json:"service_type"`
	Terms         map[string]interface{} `json:"terms"`
	StartTime     float64                `json:"start_time"`
	EndTime       float64                `json:"end_time,omitempty"`
	State         State                  `json:"state"`
	PaymentAmount float64                `json:"payment_amount"`
	PaymentStatus string                 `json:"payment_status"`
}

// ToRecord converts the contract into a ledger record.
func (c ServiceContract) ToRecord() types.Record {
	return types.Record{
		"contract_id":    c.ContractID,
		"provider_id":    c.ProviderID,
		"consumer_id":    c.ConsumerID,
		"service_type":   c.ServiceType,
		"terms":          c.Terms,
		"start_time":     c.StartTime,
		"end_time":       c.EndTime,
		"state":          c.State.String(),
		"payment_amount": c.PaymentAmount,
		"payment_status": c.PaymentStatus,
	}
}

// ValidateContract checks a contract's required fields and temporal sanity:
// the start time is not in the future, the end time (when set) follows the
// start time, and the payment amount is not negative.
func ValidateContract(c ServiceContract) bool {
	if c.ContractID == "" || c.ProviderID == "" || c.ConsumerID == "" || c.ServiceType == "" || c.Terms == nil {
		return false
	}
	if c.StartTime > types.Now() {
		return false
	}
	if c.EndTime != 0 && c.EndTime <= c.StartTime {
		return false
	}
	return c.PaymentAmount >= 0
}

// Event is one entry in a smart contract's event log.
type Event struct {
	Timestamp float64                `json:"timestamp"`
	Type      string                 `json:"type"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// SmartContract wraps a service contract with transition-checked state
// changes and an append-only event log.
type SmartContract struct {
	mu       sync.Mutex
	contract ServiceContract
	events   []Event
}

// NewSmartContract wraps a service contract.
func NewSmartContract(contract ServiceContract) *SmartContract {
	return &SmartContract{contract: contract}
}

// Contract returns a copy of the underlying contract.
func (s *SmartContract) Contract() ServiceContract {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contract
}

// UpdateState moves the contract to next when the lifecycle graph allows it
// and logs the change. It reports whether the transition was applied.
func (s *SmartContract) UpdateState(next State, metadata map[string]interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidateStateTransition(s.contract.State, next) {
		return false
	}
	previous := s.contract.State
	s.contract.State = next
	s.events = append(s.events, Event{
		Timestamp: types.Now(),
		Type:      "state_change",
		Metadata: mergeMetadata(metadata, map[string]interface{}{
			"old_state": previous.String(),
			"new_state": next.String(),
		}),
	})
	return true
}

// ProcessPayment settles the contract's payment. The amount must match the
// agreed payment exactly.
func (s *SmartContract) ProcessPayment(amount float64, metadata map[string]interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount != s.contract.PaymentAmount {
		return false
	}
	s.contract.PaymentStatus = "completed"
	s.events = append(s.events, Event{
		Timestamp: types.Now(),
		Type:      "payment",
		Metadata: mergeMetadata(metadata, map[string]interface{}{
			"amount": amount,
		}),
	})
	return true
}

// Events returns a copy of the event log.
func (s *SmartContract) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func mergeMetadata(metadata, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(metadata)+len(extra))
	for k, v := range metadata {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
