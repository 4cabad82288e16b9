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

package clients

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/config"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/service/filesystem"
)

// Run connects the broker client clientType needs and runs the client
// application until ctx ends.
func Run(ctx context.Context, clientType string, cfg config.ClientConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(clientType); err != nil {
		return err
	}
	log = logger.OrFor(log, logger.ComponentLauncher)
	log.Infof("Starting %s, broker version %s", clientType, broker.Version)

	switch clientType {
	case config.ProducerClientType:
		producer, err := broker.NewProducer(cfg.Broker(), cfg.HeartbeatPolicy(), log.Named(logger.ComponentProducer))
		if err != nil {
			return err
		}
		if err := producer.Connect(ctx); err != nil {
			return err
		}
		defer producer.Close()

		client, err := NewProducerClient(cfg, producer, log.Named(logger.ComponentProducerClient))
		if err != nil {
			return err
		}
		return client.Run(ctx)

	case config.ConsumerClientType, config.ArchiveClientType:
		consumer, err := connectConsumer(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer consumer.Close()

		var client Client
		if clientType == config.ConsumerClientType {
			client, err = NewConsumerClient(cfg, consumer, log.Named(logger.ComponentConsumerClient))
		} else {
			client, err = NewArchiveClient(cfg, consumer, log.Named(logger.ComponentArchiveClient))
		}
		if err != nil {
			return err
		}
		return client.Run(ctx)

	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownClientType, clientType)
	}
}

func connectConsumer(ctx context.Context, cfg config.ClientConfig, log *zap.SugaredLogger) (*broker.Consumer, error) {
	if cfg.HeartbeatDirectory != "" {
		if err := filesystem.NewDefaultService().EnsureDirectory(ctx, cfg.HeartbeatDirectory); err != nil {
			return nil, fmt.Errorf("failed to create heartbeat directory: %w", err)
		}
	}

	consumer, err := broker.NewConsumer(cfg.Broker(), cfg.HeartbeatDirectory, log.Named(logger.ComponentConsumer))
	if err != nil {
		return nil, err
	}
	if err := consumer.Connect(ctx); err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(ctx, cfg.TopicList...); err != nil {
		consumer.Close()
		return nil, err
	}
	return consumer, nil
}
