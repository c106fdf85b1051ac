package network

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunar-bby/AgoraAI/internal/messaging"
	"github.com/lunar-bby/AgoraAI/internal/types"
)

func startNode(t *testing.T, nodeID string) (*Node, *messaging.Broker) {
	t.Helper()

	broker := messaging.NewBroker()
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })

	node := NewNode(Config{NodeID: nodeID, ListenAddr: "127.0.0.1:0"}, broker)
	require.NoError(t, node.Start())
	t.Cleanup(func() { _ = node.Stop() })

	return node, broker
}

func TestConnectAndDeliverToBroker(t *testing.T) {
	n1, _ := startNode(t, "node-1")
	n2, b2 := startNode(t, "node-2")

	received := make(chan types.Message, 1)
	b2.Subscribe(types.BroadcastRecipient, func(msg types.Message) {
		if msg.Type == types.MessageEvent {
			received <- msg
		}
	})

	require.NoError(t, n1.ConnectToPeer("node-2", n2.ListenAddr()))

	msg := types.NewMessage(types.MessageEvent, "node-1", types.BroadcastRecipient,
		map[string]interface{}{"k": "v"}, "")
	n1.Broadcast(msg)

	select {
	case got := <-received:
		assert.Equal(t, msg, got)
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the remote broker")
	}
}

func TestHelloHandshakeRegistersPeer(t *testing.T) {
	n1, _ := startNode(t, "node-1")
	n2, _ := startNode(t, "node-2")

	require.NoError(t, n1.ConnectToPeer("node-2", n2.ListenAddr()))

	assert.Eventually(t, func() bool {
		for _, peer := range n2.Peers() {
			if peer.ID == "node-1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPeerDisconnectCleansUpState(t *testing.T) {
	n1, _ := startNode(t, "node-1")
	n2, _ := startNode(t, "node-2")

	require.NoError(t, n1.ConnectToPeer("node-2", n2.ListenAddr()))
	require.Len(t, n1.Peers(), 1)

	require.NoError(t, n1.DisconnectFromPeer("node-2"))
	assert.Empty(t, n1.Peers())
	assert.ErrorIs(t, n1.DisconnectFromPeer("node-2"), ErrPeerNotConnected)

	// The remote side notices the closed connection and cleans up too.
	assert.Eventually(t, func() bool {
		return len(n2.Peers()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastSurvivesDeadPeer(t *testing.T) {
	n1, _ := startNode(t, "node-1")
	n2, b2 := startNode(t, "node-2")
	n3, _ := startNode(t, "node-3")

	var mu sync.Mutex
	count := 0
	b2.Subscribe(types.BroadcastRecipient, func(msg types.Message) {
		if msg.Type == types.MessageEvent {
			mu.Lock()
			count++
			mu.Unlock()
		}
	})

	require.NoError(t, n1.ConnectToPeer("node-2", n2.ListenAddr()))
	require.NoError(t, n1.ConnectToPeer("node-3", n3.ListenAddr()))
	require.NoError(t, n3.Stop())

	// Both broadcasts must reach node-2 even though node-3 is gone.
	for i := 0; i < 2; i++ {
		n1.Broadcast(types.NewMessage(types.MessageEvent, "node-1", types.BroadcastRecipient, nil, ""))
		time.Sleep(20 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopUnblocksHandshakeReads(t *testing.T) {
	n1, _ := startNode(t, "node-1")

	// A client that connects but never sends its hello leaves the node
	// blocked reading the handshake frame.
	conn, err := net.Dial("tcp", n1.ListenAddr())
	require.NoError(t, err)
	defer conn.Close()

	// Give the accept loop time to pick the connection up.
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- n1.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a connection stuck in the handshake")
	}

	// Shutdown closed the stalled connection.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestStopWithConnectedPeersReturns(t *testing.T) {
	n1, _ := startNode(t, "node-1")
	n2, _ := startNode(t, "node-2")
	n3, _ := startNode(t, "node-3")

	require.NoError(t, n1.ConnectToPeer("node-2", n2.ListenAddr()))
	require.NoError(t, n1.ConnectToPeer("node-3", n3.ListenAddr()))

	// Stopping right after the dials must not hang even if a hello is
	// still in flight on the remote side.
	for _, node := range []*Node{n3, n2, n1} {
		done := make(chan error, 1)
		go func(n *Node) { done <- n.Stop() }(node)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Stop did not return")
		}
	}
}

func TestConnectToPeerOnStoppedNode(t *testing.T) {
	broker := messaging.NewBroker()
	n1 := NewNode(Config{NodeID: "node-1", ListenAddr: "127.0.0.1:0"}, broker)
	require.NoError(t, n1.Start())
	require.NoError(t, n1.Stop())

	n2, _ := startNode(t, "node-2")

	assert.ErrorIs(t, n1.ConnectToPeer("node-2", n2.ListenAddr()), ErrNodeNotRunning)
	assert.Empty(t, n1.Peers())
}

func TestNodeLifecycle(t *testing.T) {
	broker := messaging.NewBroker()
	node := NewNode(Config{NodeID: "node-1", ListenAddr: "127.0.0.1:0"}, broker)

	assert.ErrorIs(t, node.Stop(), ErrNodeNotRunning)
	require.NoError(t, node.Start())
	assert.ErrorIs(t, node.Start(), ErrNodeAlreadyRunning)
	require.NoError(t, node.Stop())
}
