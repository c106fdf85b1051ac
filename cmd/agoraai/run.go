package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lunar-bby/AgoraAI/internal/config"
	"github.com/lunar-bby/AgoraAI/internal/ledger"
	"github.com/lunar-bby/AgoraAI/internal/messaging"
	"github.com/lunar-bby/AgoraAI/internal/network"
	"github.com/lunar-bby/AgoraAI/internal/registry"
)

func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a marketplace node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return runNode(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	return cmd
}

func runNode(cfg *config.Config) error {
	manager := ledger.NewManager(ledger.Config{
		Difficulty:   cfg.Ledger.Difficulty,
		MiningReward: cfg.Ledger.MiningReward,
		MineInterval: cfg.Ledger.MineInterval.Std(),
		MinPending:   cfg.Ledger.MinPending,
	})
	broker := messaging.NewBroker()
	node := network.NewNode(network.Config{
		NodeID:     cfg.NodeID,
		ListenAddr: cfg.ListenAddr,
		Seeds:      cfg.Seeds,
	}, broker)
	discovery := network.NewDiscovery(node, cfg.Network.DiscoveryInterval.Std())
	reg := registry.NewRegistry(cfg.Registry.HeartbeatInterval.Std())

	if err := broker.Start(); err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("failed to start network node: %w", err)
	}
	if err := discovery.Start(); err != nil {
		return err
	}
	if err := reg.Start(); err != nil {
		return err
	}
	if err := manager.Start(); err != nil {
		return err
	}

	log.Printf("node %s started on %s (difficulty %d)", cfg.NodeID, node.ListenAddr(), cfg.Ledger.Difficulty)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("shutting down node %s", cfg.NodeID)
	if err := manager.Stop(); err != nil {
		log.Printf("failed to stop ledger: %v", err)
	}
	if err := reg.Stop(); err != nil {
		log.Printf("failed to stop registry: %v", err)
	}
	if err := discovery.Stop(); err != nil {
		log.Printf("failed to stop discovery: %v", err)
	}
	if err := node.Stop(); err != nil {
		log.Printf("failed to stop network node: %v", err)
	}
	if err := broker.Stop(); err != nil {
		log.Printf("failed to stop broker: %v", err)
	}
	return nil
}
