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

package hazdev_plugin

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/service/filesystem"
)

const (
	defaultConsumerGroup = "hazdev_broker"
	defaultPollTimeout   = "1s"
	keyMetadataKey       = "hazdev_key"
)

// MessageReceiver is the part of broker.Consumer the input needs
type MessageReceiver interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topics ...string) error
	PollRecords(ctx context.Context, timeout time.Duration) ([]kafka.Record, error)
	Commit(ctx context.Context) error
	LastHeartbeatTime() time.Time
	IsStale(threshold time.Duration, now time.Time) bool
	Close() error
}

func init() {
	err := service.RegisterBatchInput("hazdev_broker", inputConfig(), newHazdevInput)
	if err != nil {
		panic(err)
	}
}

func inputConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Consumes messages from hazdev broker topics with heartbeats filtered out").
		Description(`
The hazdev_broker input consumes the given topics and forwards every application message.
Heartbeat messages sent by hazdev producers are never forwarded. A heartbeat whose topic is one
of the subscribed topics updates the last heartbeat time and, when heartbeat_directory is set,
is written to <heartbeat_directory>/<topic>_<client id>.heartbeat.

The topic of each forwarded message is stored in the hazdev_topic metadata field. Offsets are
committed once a batch has been acknowledged.`).
		Field(service.NewStringListField("topics").
			Description("Topics to consume.").
			Example([]string{"hazdev.events"})).
		Field(service.NewStringField("broker_address").
			Description("Comma separated list of seed brokers.").
			Default(defaultBrokerAddress)).
		Field(service.NewStringField("consumer_group").
			Description("Consumer group used to track offsets.").
			Default(defaultConsumerGroup)).
		Field(service.NewStringField("heartbeat_directory").
			Description("Directory for heartbeat status files. Empty disables them.").
			Default("")).
		Field(service.NewDurationField("poll_timeout").
			Description("Maximum time a single read waits for messages.").
			Default(defaultPollTimeout)).
		Field(service.NewDurationField("heartbeat_timeout").
			Description("Warn when no heartbeat arrived within this duration. 0s disables the check.").
			Advanced().
			Default("0s")).
		Field(service.NewStringMapField("properties").
			Description("Additional client properties such as auto.offset.reset or session.timeout.ms.").
			Advanced().
			Default(map[string]any{}))
}

type hazdevInputConfig struct {
	topics             []string
	brokerAddress      string
	consumerGroup      string
	heartbeatDirectory string
	pollTimeout        time.Duration
	heartbeatTimeout   time.Duration
	properties         map[string]string
}

type hazdevInput struct {
	config   hazdevInputConfig
	receiver MessageReceiver
	fs       filesystem.Service
	now      func() time.Time
	log      *service.Logger
	metrics  *HazdevInputMetrics
	stale    bool
}

func parseInputConfig(conf *service.ParsedConfig) (hazdevInputConfig, error) {
	var (
		config hazdevInputConfig
		err    error
	)

	if config.topics, err = conf.FieldStringList("topics"); err != nil {
		return config, fmt.Errorf("error while parsing topics field from the config: %v", err)
	}
	if len(config.topics) == 0 {
		return config, errors.New("at least one topic is required")
	}
	if config.brokerAddress, err = conf.FieldString("broker_address"); err != nil {
		return config, fmt.Errorf("error while parsing broker_address field from the config: %v", err)
	}
	if config.brokerAddress == "" {
		config.brokerAddress = defaultBrokerAddress
	}
	if config.consumerGroup, err = conf.FieldString("consumer_group"); err != nil {
		return config, fmt.Errorf("error while parsing consumer_group field from the config: %v", err)
	}
	if config.heartbeatDirectory, err = conf.FieldString("heartbeat_directory"); err != nil {
		return config, fmt.Errorf("error while parsing heartbeat_directory field from the config: %v", err)
	}
	if config.pollTimeout, err = conf.FieldDuration("poll_timeout"); err != nil {
		return config, fmt.Errorf("error while parsing poll_timeout field from the config: %v", err)
	}
	if config.heartbeatTimeout, err = conf.FieldDuration("heartbeat_timeout"); err != nil {
		return config, fmt.Errorf("error while parsing heartbeat_timeout field from the config: %v", err)
	}
	if config.properties, err = conf.FieldStringMap("properties"); err != nil {
		return config, fmt.Errorf("error while parsing properties field from the config: %v", err)
	}

	return config, nil
}

// brokerConfig builds the consumer broker config. Offsets are committed on
// ack, so auto commit is off unless the properties say otherwise.
func (c hazdevInputConfig) brokerConfig() broker.BrokerConfig {
	props := maps.Clone(c.properties)
	if props == nil {
		props = map[string]string{}
	}
	if _, ok := props[kafka.PropGroupID]; !ok && c.consumerGroup != "" {
		props[kafka.PropGroupID] = c.consumerGroup
	}
	if _, ok := props[kafka.PropEnableAutoCommit]; !ok {
		props[kafka.PropEnableAutoCommit] = "false"
	}
	return broker.NewBrokerConfig(broker.ConsumerConfigType, c.brokerAddress, props)
}

func newHazdevInput(conf *service.ParsedConfig, mgr *service.Resources) (service.BatchInput, error) {
	config, err := parseInputConfig(conf)
	if err != nil {
		return nil, err
	}

	consumer, err := broker.NewConsumer(config.brokerConfig(), config.heartbeatDirectory, nil)
	if err != nil {
		return nil, fmt.Errorf("error while creating the hazdev consumer: %v", err)
	}

	input := newHazdevInputWithReceiver(consumer, config, mgr.Logger(), NewHazdevInputMetrics(mgr.Metrics()))
	return service.AutoRetryNacksBatched(input), nil
}

// Testable constructor that accepts the receiver
func newHazdevInputWithReceiver(receiver MessageReceiver, config hazdevInputConfig, logger *service.Logger, metrics *HazdevInputMetrics) *hazdevInput {
	return &hazdevInput{
		config:   config,
		receiver: receiver,
		fs:       filesystem.NewDefaultService(),
		now:      time.Now,
		log:      logger,
		metrics:  metrics,
	}
}

// Connect prepares the heartbeat directory, connects and subscribes
func (i *hazdevInput) Connect(ctx context.Context) error {
	if i.config.heartbeatDirectory != "" {
		if err := i.fs.EnsureDirectory(ctx, i.config.heartbeatDirectory); err != nil {
			return fmt.Errorf("error while creating heartbeat directory %s: %v", i.config.heartbeatDirectory, err)
		}
	}

	i.log.Infof("Connecting hazdev consumer to %s, topics %v", i.config.brokerAddress, i.config.topics)
	if err := i.receiver.Connect(ctx); err != nil {
		return fmt.Errorf("error while connecting to the hazdev broker %s: %v", i.config.brokerAddress, err)
	}
	if err := i.receiver.Subscribe(ctx, i.config.topics...); err != nil {
		return fmt.Errorf("error while subscribing to %v: %v", i.config.topics, err)
	}

	i.metrics.LogConnected()
	return nil
}

// ReadBatch polls once and returns the application messages. Heartbeats
// have already been removed by the consumer.
func (i *hazdevInput) ReadBatch(ctx context.Context) (service.MessageBatch, service.AckFunc, error) {
	start := time.Now()

	records, err := i.receiver.PollRecords(ctx, i.config.pollTimeout)
	i.checkHeartbeat()
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		i.metrics.LogPollError()
		if errors.Is(err, kafka.ErrNotConnected) || errors.Is(err, broker.ErrNoTopics) {
			return nil, nil, service.ErrNotConnected
		}
		return nil, nil, fmt.Errorf("error while polling the hazdev broker: %v", err)
	}

	if len(records) == 0 {
		i.metrics.LogPoll(start, 0)
		return nil, func(ctx context.Context, err error) error { return nil }, nil
	}

	batch := make(service.MessageBatch, 0, len(records))
	for _, r := range records {
		msg := service.NewMessage(r.Value)
		msg.MetaSet(topicMetadataKey, r.Topic)
		if len(r.Key) > 0 {
			msg.MetaSet(keyMetadataKey, string(r.Key))
		}
		batch = append(batch, msg)
	}
	i.metrics.LogPoll(start, len(batch))

	return batch, func(ctx context.Context, err error) error {
		if err != nil {
			// nacked batches are retried by AutoRetryNacksBatched, nothing to commit
			return nil
		}
		if cerr := i.receiver.Commit(ctx); cerr != nil {
			i.metrics.LogCommitError()
			i.log.Errorf("Failed to commit offsets: %v", cerr)
			return cerr
		}
		return nil
	}, nil
}

// checkHeartbeat exports the heartbeat state and logs transitions into and
// out of staleness
func (i *hazdevInput) checkHeartbeat() {
	last := i.receiver.LastHeartbeatTime()
	if i.config.heartbeatTimeout <= 0 {
		i.metrics.LogHeartbeat(last, false)
		return
	}

	stale := i.receiver.IsStale(i.config.heartbeatTimeout, i.now())
	i.metrics.LogHeartbeat(last, stale)

	switch {
	case stale && !i.stale:
		if last.IsZero() {
			i.log.Warnf("No heartbeat received yet on %v", i.config.topics)
		} else {
			i.log.Warnf("No heartbeat received on %v since %s", i.config.topics, last.UTC().Format(time.RFC3339))
		}
	case !stale && i.stale:
		i.log.Infof("Heartbeats on %v resumed", i.config.topics)
	}
	i.stale = stale
}

// Close closes the underlying consumer
func (i *hazdevInput) Close(ctx context.Context) error {
	i.log.Infof("Attempting to close the hazdev consumer")
	i.metrics.LogDisconnected()
	if err := i.receiver.Close(); err != nil {
		return fmt.Errorf("error while closing the hazdev consumer: %v", err)
	}
	return nil
}
