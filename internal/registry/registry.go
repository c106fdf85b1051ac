package registry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("registry heartbeat monitor is already running")
	ErrNotRunning     = errors.New("registry heartbeat monitor is not running")
)

// Agent is the handle the marketplace works against. Implementations live
// outside this package; the registry only tracks and serves them.
type Agent interface {
	ID() string
	Capabilities() []string
	HandleRequest(payload map[string]interface{}) (map[string]interface{}, error)
	ReputationScore() float64
}

// Registry tracks agents and the capabilities they advertise. Lookup by
// capability preserves registration order, which is also the tie-break
// order for provider selection.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]Agent
	capabilities map[string][]string
	lastActive   map[string]time.Time

	heartbeatInterval time.Duration

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates a registry whose heartbeat monitor, once started,
// evicts agents idle for longer than twice the given interval.
func NewRegistry(heartbeatInterval time.Duration) *Registry {
	return &Registry{
		agents:            make(map[string]Agent),
		capabilities:      make(map[string][]string),
		lastActive:        make(map[string]time.Time),
		heartbeatInterval: heartbeatInterval,
	}
}

// RegisterAgent adds an agent and indexes its capabilities.
func (r *Registry) RegisterAgent(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents[agent.ID()] = agent
	r.lastActive[agent.ID()] = time.Now()
	for _, cap := range agent.Capabilities() {
		r.capabilities[cap] = append(r.capabilities[cap], agent.ID())
	}
}

// UnregisterAgent removes an agent and its capability index entries.
func (r *Registry) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(agentID)
}

func (r *Registry) unregisterLocked(agentID string) {
	agent, ok := r.agents[agentID]
	if !ok {
		return
	}
	for _, cap := range agent.Capabilities() {
		ids := r.capabilities[cap]
		for i, id := range ids {
			if id == agentID {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(r.capabilities, cap)
		} else {
			r.capabilities[cap] = ids
		}
	}
	delete(r.agents, agentID)
	delete(r.lastActive, agentID)
}

// GetAgent returns the agent with the given id.
func (r *Registry) GetAgent(agentID string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	return agent, ok
}

// GetAgentsByCapability returns the agents advertising a capability, in
// registration order.
func (r *Registry) GetAgentsByCapability(capability string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.capabilities[capability]
	agents := make([]Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := r.agents[id]; ok {
			agents = append(agents, agent)
		}
	}
	return agents
}

// GetAllAgents returns every registered agent.
func (r *Registry) GetAllAgents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, agent)
	}
	return agents
}

// UpdateAgentStatus marks an agent as recently active.
func (r *Registry) UpdateAgentStatus(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agentID]; ok {
		r.lastActive[agentID] = time.Now()
	}
}

// Start launches the heartbeat monitor.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.monitor(ctx)
	}()
	return nil
}

// Stop halts the heartbeat monitor.
func (r *Registry) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *Registry) monitor(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictStale()
		}
	}
}

func (r *Registry) evictStale() {
	timeout := 2 * r.heartbeatInterval
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, seen := range r.lastActive {
		if now.Sub(seen) > timeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		log.Printf("registry: evicting inactive agent %s", id)
		r.unregisterLocked(id)
	}
}
