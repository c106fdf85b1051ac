package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/lunar-bby/AgoraAI/internal/messaging"
	"github.com/lunar-bby/AgoraAI/internal/types"
)

var (
	ErrNodeAlreadyRunning = errors.New("network node is already running")
	ErrNodeNotRunning     = errors.New("network node is not running")
	ErrPeerNotConnected   = errors.New("peer is not connected")
	ErrBadHandshake       = errors.New("first message from peer must be a heartbeat")
)

// Config represents the network node configuration.
type Config struct {
	NodeID     string
	ListenAddr string
	Seeds      []Seed
}

// Seed identifies a node to connect to at startup.
type Seed struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID   string
	Addr string
}

// Node exchanges message frames with peers over TCP and feeds every inbound
// message into the local broker. Connections open with a HEARTBEAT hello
// that announces the peer's id; a connection dropping mid-frame is treated
// as the peer leaving, never as a fatal condition.
//
// Every connection the node holds, including accepted ones still waiting
// for their hello, is reachable from Stop so shutdown can always unblock
// the goroutines reading from them.
type Node struct {
	config Config
	broker *messaging.Broker

	mu       sync.RWMutex
	conns    map[string]net.Conn
	peers    map[string]PeerInfo
	pending  map[net.Conn]struct{}
	listener net.Listener

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewNode creates a network node publishing into the given broker.
func NewNode(config Config, broker *messaging.Broker) *Node {
	return &Node{
		config:  config,
		broker:  broker,
		conns:   make(map[string]net.Conn),
		peers:   make(map[string]PeerInfo),
		pending: make(map[net.Conn]struct{}),
	}
}

// Start begins listening and dials the configured seeds.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrNodeAlreadyRunning
	}

	listener, err := net.Listen("tcp", n.config.ListenAddr)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("failed to start listener: %w", err)
	}
	n.listener = listener
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.running = true

	var seeds []Seed
	for _, seed := range n.config.Seeds {
		if seed.ID != n.config.NodeID {
			seeds = append(seeds, seed)
		}
	}
	// The accept loop and the seed dials claim their WaitGroup slots while
	// the node is still marked running, so Stop's Wait always sees them.
	n.wg.Add(1 + len(seeds))
	n.mu.Unlock()

	log.Printf("network: node %s listening on %s", n.config.NodeID, listener.Addr())

	go func() {
		defer n.wg.Done()
		n.acceptConnections(listener)
	}()

	for _, seed := range seeds {
		go func(seed Seed) {
			defer n.wg.Done()
			if err := n.ConnectToPeer(seed.ID, seed.Addr); err != nil {
				log.Printf("network: failed to connect to seed %s: %v", seed.ID, err)
			}
		}(seed)
	}
	return nil
}

// Stop closes the listener and every connection the node holds, registered
// or still in the handshake, then waits for all goroutines to exit.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return ErrNodeNotRunning
	}
	n.running = false
	n.cancel()
	_ = n.listener.Close()
	for id, conn := range n.conns {
		_ = conn.Close()
		delete(n.conns, id)
		delete(n.peers, id)
	}
	for conn := range n.pending {
		_ = conn.Close()
		delete(n.pending, conn)
	}
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

// ListenAddr returns the bound listener address.
func (n *Node) ListenAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.listener == nil {
		return n.config.ListenAddr
	}
	return n.listener.Addr().String()
}

// ConnectToPeer dials a peer, performs the hello handshake and registers the
// connection. It refuses on a node that is not running.
func (n *Node) ConnectToPeer(peerID, addr string) error {
	n.mu.RLock()
	running := n.running
	n.mu.RUnlock()
	if !running {
		return ErrNodeNotRunning
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial peer %s: %w", peerID, err)
	}

	hello := types.NewMessage(types.MessageHeartbeat, n.config.NodeID, types.BroadcastRecipient,
		map[string]interface{}{"listen_addr": n.config.ListenAddr}, "")
	if err := WriteFrame(conn, hello); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to send hello to peer %s: %w", peerID, err)
	}

	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		_ = conn.Close()
		return ErrNodeNotRunning
	}
	n.registerPeerLocked(peerID, addr, conn)
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		n.readLoop(peerID, conn)
	}()
	return nil
}

// DisconnectFromPeer drops the connection state for a peer.
func (n *Node) DisconnectFromPeer(peerID string) error {
	n.mu.Lock()
	conn, ok := n.conns[peerID]
	if ok {
		delete(n.conns, peerID)
		delete(n.peers, peerID)
	}
	n.mu.Unlock()

	if !ok {
		return ErrPeerNotConnected
	}
	return conn.Close()
}

// Broadcast sends the message to every connected peer. A peer that cannot be
// written to is logged and disconnected; the remaining sends continue.
func (n *Node) Broadcast(msg types.Message) {
	n.mu.RLock()
	conns := make(map[string]net.Conn, len(n.conns))
	for id, conn := range n.conns {
		conns[id] = conn
	}
	n.mu.RUnlock()

	for peerID, conn := range conns {
		if err := WriteFrame(conn, msg); err != nil {
			log.Printf("network: failed to send to peer %s: %v", peerID, err)
			_ = n.DisconnectFromPeer(peerID)
		}
	}
}

// SendToPeer writes the message to one connected peer.
func (n *Node) SendToPeer(peerID string, msg types.Message) error {
	n.mu.RLock()
	conn, ok := n.conns[peerID]
	n.mu.RUnlock()

	if !ok {
		return ErrPeerNotConnected
	}
	if err := WriteFrame(conn, msg); err != nil {
		_ = n.DisconnectFromPeer(peerID)
		return fmt.Errorf("failed to send to peer %s: %w", peerID, err)
	}
	return nil
}

// Peers returns the currently connected peers.
func (n *Node) Peers() []PeerInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	peers := make([]PeerInfo, 0, len(n.peers))
	for _, info := range n.peers {
		peers = append(peers, info)
	}
	return peers
}

func (n *Node) acceptConnections(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-n.ctx.Done():
				return
			default:
			}
			log.Printf("network: failed to accept connection: %v", err)
			continue
		}

		if !n.trackPending(conn) {
			_ = conn.Close()
			return
		}
		go func() {
			defer n.wg.Done()
			n.handleInbound(conn)
		}()
	}
}

// trackPending records an accepted connection that has not completed its
// handshake yet and claims the WaitGroup slot for its handler. It refuses
// once the node is stopped.
func (n *Node) trackPending(conn net.Conn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return false
	}
	n.pending[conn] = struct{}{}
	n.wg.Add(1)
	return true
}

// handleInbound performs the hello handshake on an accepted connection and
// hands it to the read loop.
func (n *Node) handleInbound(conn net.Conn) {
	hello, err := ReadFrame(conn)
	if err != nil {
		n.dropPending(conn)
		if !isDisconnect(err) {
			log.Printf("network: error reading hello from %s: %v", conn.RemoteAddr(), err)
		}
		_ = conn.Close()
		return
	}
	if hello.Type != types.MessageHeartbeat {
		n.dropPending(conn)
		log.Printf("network: rejecting %s: %v", conn.RemoteAddr(), ErrBadHandshake)
		_ = conn.Close()
		return
	}

	peerID := hello.Sender
	if !n.promotePending(peerID, conn) {
		_ = conn.Close()
		return
	}
	n.readLoop(peerID, conn)
}

// promotePending moves a handshaken connection from the pending set into the
// peer map. It reports false when the node stopped in the meantime.
func (n *Node) promotePending(peerID string, conn net.Conn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.pending, conn)
	if !n.running {
		return false
	}
	n.registerPeerLocked(peerID, conn.RemoteAddr().String(), conn)
	return true
}

func (n *Node) dropPending(conn net.Conn) {
	n.mu.Lock()
	delete(n.pending, conn)
	n.mu.Unlock()
}

func (n *Node) registerPeerLocked(peerID, addr string, conn net.Conn) {
	if old, ok := n.conns[peerID]; ok {
		_ = old.Close()
	}
	n.conns[peerID] = conn
	n.peers[peerID] = PeerInfo{ID: peerID, Addr: addr}
}

// readLoop publishes inbound frames to the broker until the peer goes away.
func (n *Node) readLoop(peerID string, conn net.Conn) {
	defer func() {
		if err := n.DisconnectFromPeer(peerID); err == nil {
			log.Printf("network: peer %s disconnected", peerID)
		}
	}()

	for {
		msg, err := ReadFrame(conn)
		if err != nil {
			if !isDisconnect(err) {
				log.Printf("network: error reading from peer %s: %v", peerID, err)
			}
			return
		}
		n.broker.Publish(msg)
	}
}

// isDisconnect reports whether the read error just means the peer (or this
// node's own shutdown) closed the connection.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
