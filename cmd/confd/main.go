// Copyright 2024 Nokia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ncxd/confd/pkg/config"
	"github.com/ncxd/confd/pkg/engine"
	"github.com/ncxd/confd/pkg/server"
)

var (
	configFile string
	version    = "dev"
)

func main() {
	root := &cobra.Command{
		Use:   "confd",
		Short: "confd is a NETCONF/RESTCONF configuration engine",
		RunE:  run,
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	root.Version = version

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.New(configFile)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	srv, err := server.New(ctx, cfg, e)
	if err != nil {
		return fmt.Errorf("starting front-ends: %w", err)
	}
	setupCloseHandler(cancel, srv)

	log.Infof("confd %s ready: netconf=unix:%s restconf=%s metrics=%s",
		version, cfg.NETCONF.SocketPath, cfg.RESTCONF.Address, cfg.Metrics.Address)
	return srv.Serve(ctx)
}

func setupCloseHandler(cancel context.CancelFunc, srv *server.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Infof("received signal %q, shutting down", sig)
		srv.Stop()
		cancel()
	}()
}
