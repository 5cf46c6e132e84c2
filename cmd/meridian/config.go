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

package main

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/meridianchain/meridian/node"
	"github.com/meridianchain/meridian/txpool"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the chain store and IPC socket (empty = in memory)",
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Instance name reported over RPC and telemetry",
		Value: node.DefaultConfig.Name,
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	httpEnabledFlag = &cli.BoolFlag{
		Name:  "http",
		Usage: "Enable the HTTP-RPC server",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP-RPC server listening interface",
		Value: "127.0.0.1",
	}
	httpPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP-RPC server listening port",
		Value: node.DefaultConfig.HTTPPort,
	}
	httpCorsFlag = &cli.StringSliceFlag{
		Name:  "http.corsdomain",
		Usage: "Domains from which to accept cross origin requests",
	}
	wsEnabledFlag = &cli.BoolFlag{
		Name:  "ws",
		Usage: "Enable the WS-RPC server",
	}
	wsAddrFlag = &cli.StringFlag{
		Name:  "ws.addr",
		Usage: "WS-RPC server listening interface",
		Value: "127.0.0.1",
	}
	wsPortFlag = &cli.IntFlag{
		Name:  "ws.port",
		Usage: "WS-RPC server listening port",
		Value: node.DefaultConfig.WSPort,
	}
	wsOriginsFlag = &cli.StringSliceFlag{
		Name:  "ws.origins",
		Usage: "Origins from which to accept websocket requests",
	}
	ipcDisabledFlag = &cli.BoolFlag{
		Name:  "ipcdisable",
		Usage: "Disable the IPC-RPC server",
	}
	ipcPathFlag = &cli.StringFlag{
		Name:  "ipcpath",
		Usage: "Filename for IPC socket within the datadir (explicit paths escape it)",
		Value: node.DefaultConfig.IPCPath,
	}
	statsURLFlag = &cli.StringFlag{
		Name:  "stats",
		Usage: "Reporting URL of a stats service (nodename:secret@host:port)",
	}
	statsIntervalFlag = &cli.DurationFlag{
		Name:  "stats.interval",
		Usage: "Interval between telemetry reports",
		Value: node.DefaultConfig.TelemetryInterval,
	}
)

// meridianConfig is the on-disk configuration layout.
type meridianConfig struct {
	Node   node.Config
	TxPool txpool.Config
	Stats  statsConfig
}

type statsConfig struct {
	URL string
}

// loadConfig builds the effective configuration: defaults, then the TOML
// file, then command line flags.
func loadConfig(ctx *cli.Context) (*meridianConfig, error) {
	cfg := &meridianConfig{
		Node:   node.DefaultConfig,
		TxPool: txpool.DefaultConfig,
	}
	if path := ctx.String(configFileFlag.Name); path != "" {
		if err := loadTOML(path, cfg); err != nil {
			return nil, err
		}
	}
	applyFlags(ctx, cfg)
	cfg.Node.Logger = log.Root()
	return cfg, nil
}

func loadTOML(path string, cfg *meridianConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewDecoder(bufio.NewReader(f)).Decode(cfg)
}

func applyFlags(ctx *cli.Context, cfg *meridianConfig) {
	if ctx.IsSet(nameFlag.Name) || cfg.Node.Name == "" {
		cfg.Node.Name = ctx.String(nameFlag.Name)
	}
	if ctx.IsSet(dataDirFlag.Name) {
		if abs, err := filepath.Abs(ctx.String(dataDirFlag.Name)); err == nil {
			cfg.Node.DataDir = abs
		}
	}
	if ctx.Bool(httpEnabledFlag.Name) {
		cfg.Node.HTTPHost = ctx.String(httpAddrFlag.Name)
		cfg.Node.HTTPPort = ctx.Int(httpPortFlag.Name)
	}
	if ctx.IsSet(httpCorsFlag.Name) {
		cfg.Node.HTTPCors = ctx.StringSlice(httpCorsFlag.Name)
	}
	if ctx.Bool(wsEnabledFlag.Name) {
		cfg.Node.WSHost = ctx.String(wsAddrFlag.Name)
		cfg.Node.WSPort = ctx.Int(wsPortFlag.Name)
	}
	if ctx.IsSet(wsOriginsFlag.Name) {
		cfg.Node.WSOrigins = ctx.StringSlice(wsOriginsFlag.Name)
	}
	if ctx.Bool(ipcDisabledFlag.Name) {
		cfg.Node.IPCPath = ""
	} else if ctx.IsSet(ipcPathFlag.Name) {
		cfg.Node.IPCPath = ctx.String(ipcPathFlag.Name)
	}
	if ctx.IsSet(statsURLFlag.Name) {
		cfg.Stats.URL = ctx.String(statsURLFlag.Name)
	}
	if ctx.IsSet(statsIntervalFlag.Name) {
		cfg.Node.TelemetryInterval = ctx.Duration(statsIntervalFlag.Name)
	}
}

// chainDataDir resolves the chain store location inside the datadir.
func chainDataDir(datadir string) string {
	return filepath.Join(datadir, "chaindata")
}
