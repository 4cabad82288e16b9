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

package broker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
)

// Consumer receives application messages and strips heartbeats out of the
// stream, tracking when the last one for a subscribed topic arrived.
// A Consumer is not safe for concurrent use.
type Consumer struct {
	config BrokerConfig
	client kafka.MessageConsumer
	filter *heartbeat.Filter
	status *heartbeat.StatusWriter
	topics []string
	log    *zap.SugaredLogger
}

// NewConsumer validates cfg and creates an unconnected consumer. Accepted
// heartbeats are persisted to heartbeatDir unless it is empty.
func NewConsumer(cfg BrokerConfig, heartbeatDir string, log *zap.SugaredLogger) (*Consumer, error) {
	if err := cfg.Validate(ConsumerConfigType); err != nil {
		return nil, err
	}

	log = logger.OrFor(log, logger.ComponentConsumer)
	status := heartbeat.NewStatusWriter(heartbeatDir, log.Named(logger.ComponentStatusWriter))

	return &Consumer{
		config: cfg,
		client: kafka.NewConsumerClient(),
		filter: heartbeat.NewFilter(status, log.Named(logger.ComponentHeartbeatFilter)),
		status: status,
		log:    log,
	}, nil
}

// WithClient replaces the transport, mainly for tests
func (c *Consumer) WithClient(client kafka.MessageConsumer) *Consumer {
	c.client = client
	return c
}

// WithClock replaces the receive time source of the heartbeat filter
func (c *Consumer) WithClock(now func() time.Time) *Consumer {
	c.filter.WithClock(now)
	return c
}

// StatusWriter exposes the heartbeat status writer so callers can tune it
func (c *Consumer) StatusWriter() *heartbeat.StatusWriter {
	return c.status
}

// Connect creates the Kafka client from the configured properties
func (c *Consumer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(kafka.Brokers(c.config.Properties)) == 0 {
		return ErrNoBrokers
	}

	opts, unknown, err := kafka.OptionsFromProperties(c.config.Properties)
	if err != nil {
		return fmt.Errorf("invalid consumer properties: %w", err)
	}
	if len(unknown) > 0 {
		c.log.Warnf("Ignoring unsupported consumer properties: %v", unknown)
	}

	if err := c.client.Connect(opts...); err != nil {
		return fmt.Errorf("failed to create consumer client: %w", err)
	}

	c.log.Infof("Consumer connected to %v", kafka.Brokers(c.config.Properties))
	if len(c.topics) > 0 {
		c.client.AddTopics(c.topics...)
	}
	return nil
}

// Subscribe replaces the set of consumed topics. Heartbeats are only
// accepted for these topics.
func (c *Consumer) Subscribe(ctx context.Context, topics ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wanted := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			return ErrEmptyTopic
		}
		if !slices.Contains(wanted, t) {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		return ErrNoTopics
	}

	var removed, added []string
	for _, t := range c.topics {
		if !slices.Contains(wanted, t) {
			removed = append(removed, t)
		}
	}
	for _, t := range wanted {
		if !slices.Contains(c.topics, t) {
			added = append(added, t)
		}
	}

	c.client.RemoveTopics(removed...)
	c.client.AddTopics(added...)
	c.topics = wanted
	c.filter.Subscribe(wanted...)

	c.log.Infof("Subscribed to %v", wanted)
	return nil
}

// Topics returns the subscribed topics in subscription order
func (c *Consumer) Topics() []string {
	return slices.Clone(c.topics)
}

// Poll waits up to timeout for records and returns the application payloads
// among them. A negative timeout waits until ctx ends. Running out of time
// is not an error, it just yields no payloads.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) ([][]byte, error) {
	records, err := c.PollRecords(ctx, timeout)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(records))
	for _, r := range records {
		out = append(out, r.Value)
	}
	return out, nil
}

// PollString is Poll for text messages
func (c *Consumer) PollString(ctx context.Context, timeout time.Duration) ([]string, error) {
	payloads, err := c.Poll(ctx, timeout)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, string(p))
	}
	return out, nil
}

// PollRecords is Poll keeping the topic of every forwarded record
func (c *Consumer) PollRecords(ctx context.Context, timeout time.Duration) ([]kafka.Record, error) {
	if len(c.topics) == 0 {
		return nil, ErrNoTopics
	}

	pollCtx := ctx
	if timeout >= 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fetches := c.client.PollFetches(pollCtx)

	var fetchErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		c.log.Debugf("Fetch error on %s/%d: %v", topic, partition, err)
		if fetchErr == nil {
			fetchErr = err
		}
	})

	var records []kafka.Record
	fetches.EachRecord(func(r *kgo.Record) {
		if c.filter.Inspect(ctx, r.Value).Suppressed() {
			return
		}
		records = append(records, kafka.Record{Topic: r.Topic, Key: r.Key, Value: r.Value})
	})

	if err := ctx.Err(); err != nil && len(records) == 0 {
		return nil, err
	}
	if fetchErr != nil {
		if len(records) == 0 {
			return nil, fmt.Errorf("failed to poll: %w", fetchErr)
		}
		c.log.Warnf("Poll returned %d records alongside an error: %v", len(records), fetchErr)
	}
	return records, nil
}

// Commit commits the offsets of everything polled so far
func (c *Consumer) Commit(ctx context.Context) error {
	return c.client.CommitRecords(ctx)
}

// LastHeartbeatTime is the receive time of the last accepted heartbeat, or
// the zero time before the first one
func (c *Consumer) LastHeartbeatTime() time.Time {
	return c.filter.LastHeartbeatTime()
}

// IsStale reports whether no heartbeat arrived within threshold of now
func (c *Consumer) IsStale(threshold time.Duration, now time.Time) bool {
	return c.filter.IsStale(threshold, now)
}

// Close closes the underlying client
func (c *Consumer) Close() error {
	return c.client.Close()
}
