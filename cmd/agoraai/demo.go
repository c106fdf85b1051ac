package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lunar-bby/AgoraAI/internal/ledger"
	"github.com/lunar-bby/AgoraAI/internal/marketplace"
	"github.com/lunar-bby/AgoraAI/internal/messaging"
	"github.com/lunar-bby/AgoraAI/internal/registry"
)

// demoAgent is a self-contained provider used by the demo command.
type demoAgent struct {
	id    string
	caps  []string
	score float64
}

func (a *demoAgent) ID() string               { return a.id }
func (a *demoAgent) Capabilities() []string   { return a.caps }
func (a *demoAgent) ReputationScore() float64 { return a.score }

func (a *demoAgent) HandleRequest(payload map[string]interface{}) (map[string]interface{}, error) {
	if text, ok := payload["text"].(string); ok {
		return map[string]interface{}{"result": strings.ToUpper(text)}, nil
	}
	return map[string]interface{}{"result": "ok"}, nil
}

func newDemoCommand() *cobra.Command {
	var difficulty int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an in-process marketplace simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, difficulty)
		},
	}
	cmd.Flags().IntVar(&difficulty, "difficulty", 2, "proof-of-work difficulty for the demo ledger")
	return cmd
}

func runDemo(cmd *cobra.Command, difficulty int) error {
	out := cmd.OutOrStdout()

	reg := registry.NewRegistry(30 * time.Second)
	manager := ledger.NewManager(ledger.Config{Difficulty: difficulty, MiningReward: 1.0})
	market := marketplace.NewMarketplace(reg, manager)
	broker := messaging.NewBroker()
	if err := broker.Start(); err != nil {
		return err
	}
	defer func() { _ = broker.Stop() }()

	reg.RegisterAgent(&demoAgent{id: "shouter", caps: []string{"text_processing"}, score: 0.8})
	reg.RegisterAgent(&demoAgent{id: "mumbler", caps: []string{"text_processing"}, score: 0.3})

	fmt.Fprintln(out, "requesting text_processing service...")
	txID, err := market.RequestService("consumer-1", "text_processing",
		map[string]interface{}{"text": "hello agora"})
	if err != nil {
		return err
	}

	result, err := market.ExecuteTransaction(txID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "provider result: %v\n", result["result"])

	// Exercise the message layer: the broker answers the request itself.
	requester := messaging.NewHandler("consumer-1", broker)
	broker.Subscribe("consumer-1", requester.HandleIncoming)
	if reply := requester.SendRequest("shouter", map[string]interface{}{"ping": true}, time.Second); reply != nil {
		fmt.Fprintf(out, "request %s answered: %v\n", reply.CorrelationID, reply.Content["status"])
	}

	fmt.Fprintln(out, "mining block...")
	block := manager.MineBlock("demo-miner")
	if block == nil {
		return fmt.Errorf("nothing to mine")
	}
	fmt.Fprintf(out, "mined block %d (%s) with %d transactions\n", block.Index, block.Hash[:16], len(block.Transactions))
	fmt.Fprintf(out, "chain valid: %v, length: %d\n", manager.IsChainValid(), manager.ChainLength())

	for _, entry := range manager.GetTransactionHistory("") {
		fmt.Fprintf(out, "  block %d: %v\n", entry.BlockIndex, entry.Transaction["id"])
	}
	return nil
}
