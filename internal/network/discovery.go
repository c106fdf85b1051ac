package network

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

// Discovery periodically announces this node to its peers so newcomers can
// be found. It is advisory: connectivity works without it.
type Discovery struct {
	node     *Node
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDiscovery creates a discovery task for the node.
func NewDiscovery(node *Node, interval time.Duration) *Discovery {
	return &Discovery{
		node:     node,
		interval: interval,
	}
}

// DiscoverPeers connects to the given seed nodes, skipping this node itself.
func (d *Discovery) DiscoverPeers(seeds []Seed) {
	for _, seed := range seeds {
		if seed.ID == d.node.config.NodeID {
			continue
		}
		if err := d.node.ConnectToPeer(seed.ID, seed.Addr); err != nil {
			log.Printf("discovery: failed to connect to %s: %v", seed.ID, err)
		}
	}
}

// Start launches the periodic discovery broadcast.
func (d *Discovery) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrNodeAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	return nil
}

// Stop halts the discovery broadcast.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNodeNotRunning
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Discovery) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := types.NewMessage(types.MessageRequest, d.node.config.NodeID, types.BroadcastRecipient,
				map[string]interface{}{"type": "discovery"}, "")
			d.node.Broadcast(msg)
		}
	}
}
