// Copyright 2025 The meridian Authors
// This file is part of meridian.
//
// meridian is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// meridian is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with meridian. If not, see <http://www.gnu.org/licenses/>.

// meridian is the node process: it assembles the chain store, transaction
// pool, network, keystore, RPC transports and telemetry into one supervised
// service and runs it until the aggregated exit signal fires.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/meridianchain/meridian"
	"github.com/meridianchain/meridian/chain"
	"github.com/meridianchain/meridian/keystore"
	"github.com/meridianchain/meridian/node"
	"github.com/meridianchain/meridian/params"
	"github.com/meridianchain/meridian/simnet"
	"github.com/meridianchain/meridian/stats"
	"github.com/meridianchain/meridian/task"
	"github.com/meridianchain/meridian/txpool"
)

var app = &cli.App{
	Name:    "meridian",
	Usage:   "meridian node orchestrator",
	Version: params.VersionWithMeta,
	Flags: []cli.Flag{
		configFileFlag,
		dataDirFlag,
		nameFlag,
		verbosityFlag,
		httpEnabledFlag,
		httpAddrFlag,
		httpPortFlag,
		httpCorsFlag,
		wsEnabledFlag,
		wsAddrFlag,
		wsPortFlag,
		wsOriginsFlag,
		ipcDisabledFlag,
		ipcPathFlag,
		statsURLFlag,
		statsIntervalFlag,
	},
	Action: run,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx)
	logger := log.Root()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	chaindir := ""
	if cfg.Node.DataDir != "" {
		chaindir = chainDataDir(cfg.Node.DataDir)
	}
	blockchain, err := chain.New(chaindir, defaultGenesis(), logger)
	if err != nil {
		return fmt.Errorf("opening chain store: %v", err)
	}
	pool := txpool.New(cfg.TxPool, logger)
	keys := keystore.New()
	network := simnet.New(cfg.Node.BridgeBuffer, logger)
	defer network.Close()

	builder := node.NewServiceBuilder(&cfg.Node)
	for _, register := range []func() error{
		func() error { return builder.WithChain(blockchain) },
		func() error { return builder.WithTxPool(pool) },
		func() error { return builder.WithKeystore(keys) },
		func() error { return builder.WithNetwork(network) },
	} {
		if err := register(); err != nil {
			return err
		}
	}
	if cfg.Stats.URL != "" {
		reporter, err := stats.New(cfg.Stats.URL, cfg.Node.TelemetryInterval, logger)
		if err != nil {
			return err
		}
		if err := builder.WithTelemetry(reporter); err != nil {
			return err
		}
	}
	service, err := builder.Build()
	if err != nil {
		return err
	}

	sigc, release := task.InterruptSignals()
	defer release()

	status := service.Run(sigc)
	if code := status.ExitCode(); code != 0 {
		return cli.Exit(fmt.Sprintf("meridian: %v", status.Err), code)
	}
	return nil
}

func setupLogging(ctx *cli.Context) {
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, level, usecolor)
	log.SetDefault(log.NewLogger(handler))
}

// defaultGenesis is the dev network genesis; real deployments would load
// theirs from the chain spec.
func defaultGenesis() *meridian.Block {
	return &meridian.Block{
		Number: 0,
		Extra:  []byte("meridian devnet"),
	}
}
