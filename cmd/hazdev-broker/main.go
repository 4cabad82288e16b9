// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/clients"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/config"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
)

var clientTypes = []string{
	config.ProducerClientType,
	config.ConsumerClientType,
	config.ArchiveClientType,
}

func usage() {
	fmt.Fprintf(os.Stderr, "hazdev-broker %s\n", broker.Version)
	fmt.Fprintf(os.Stderr, "usage: hazdev-broker <%s|%s|%s> <configfile>\n", clientTypes[0], clientTypes[1], clientTypes[2])
}

func main() {
	if len(os.Args) != 3 || !slices.Contains(clientTypes, os.Args[1]) {
		usage()
		os.Exit(1)
	}
	clientType, configPath := os.Args[1], os.Args[2]

	// Initialize the global logger first thing, the level is adjusted once the config is read
	if _, err := logger.New(""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.For(logger.ComponentLauncher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewFileConfigManager(configPath).GetConfig(ctx, clientType)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		usage()
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		if _, err := logger.New(cfg.LogLevel); err != nil {
			log.Errorf("Failed to apply log level: %v", err)
			os.Exit(1)
		}
		log = logger.For(logger.ComponentLauncher)
	}
	defer func() { _ = zap.L().Sync() }()

	if err := clients.Run(ctx, clientType, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("%s stopped with error: %v", clientType, err)
		stop()
		os.Exit(1)
	}
	log.Infof("%s stopped", clientType)
}
