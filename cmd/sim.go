// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Littrow Instruments

package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Littrow/czerny/pkg/simulator"
	"github.com/spf13/cobra"
)

var simConfigPath string

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a software TCD1304 instrument over TCP",
	Long: `Host simulated TCD1304 instruments on a TCP listener.

Each accepted connection gets its own instrument with the full command set
(START, STOP, STATUS, SET_INT_TIME) and a deterministic synthetic spectrum,
so the other czerny commands can be exercised without hardware:

  czerny sim &
  czerny --tcp 127.0.0.1:7402 start

Configuration is YAML and every field is optional:

  listen: "127.0.0.1:7402"
  seed: 1
  frame:
    integrationTime: 20
    baseline: 64
    noise: 4
    peaks:
      - { center: 1200, width: 38, height: 2600 }
  limits:
    minIntegrationTime: 10
    maxIntegrationTime: 10000000
  faults:
    corruptCrcEveryN: 0
    dropEveryN: 0

CZERNY_SIM_LISTEN and CZERNY_SIM_SEED override the file.`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringVar(&simConfigPath, "config", "", "Path to YAML config (defaults apply if omitted)")
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := simulator.Load(simConfigPath)
	if err != nil {
		return err
	}

	srv := simulator.NewServer(cfg)
	if err := srv.Listen(); err != nil {
		return err
	}

	fmt.Printf("Czerny - Simulator\n")
	fmt.Printf("Listening: %s\n", srv.Addr())
	fmt.Printf("Seed: %d  Integration time: %dµs\n", cfg.Seed, cfg.Frame.IntegrationTime)
	if cfg.Faults.CorruptCRCEveryN > 0 || cfg.Faults.DropEveryN > 0 {
		fmt.Printf("Faults: corrupt CRC every %d frames, drop every %d frames\n",
			cfg.Faults.CorruptCRCEveryN, cfg.Faults.DropEveryN)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		// Close stops the listener and waits for active sessions to drain
		log.Printf("Received %v, shutting down", sig)
		srv.Close()
		return <-errChan
	}
}
