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
	"sync"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
)

const (
	defaultBrokerAddress = "localhost:9092"
	defaultPartitions    = 1
	topicMetadataKey     = "hazdev_topic"
)

// MessageSender is the part of broker.Producer the output needs
type MessageSender interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, topic string, data []byte) error
	EnsureTopic(ctx context.Context, topic string, partitions int32) error
	ClientID() string
	Close() error
}

func init() {
	err := service.RegisterBatchOutput("hazdev_broker", outputConfig(), newHazdevOutput)
	if err != nil {
		panic(err)
	}
}

func outputConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Writes messages to hazdev broker topics and emits producer heartbeats").
		Description(`
The hazdev_broker output publishes every message to a Kafka topic. After each data message the
producer checks its heartbeat schedule and, when one is due, publishes a heartbeat message to the
same topic. Consumers use these heartbeats to tell that the producer is alive even when it has
no data to send.

heartbeat_interval controls the schedule: a negative value sends a heartbeat after every message,
0 disables heartbeats and a positive value is the minimum number of seconds between two heartbeats.

A failing heartbeat never fails the batch. A failing data send does and the batch is retried.`).
		Field(service.NewInterpolatedStringField("topic").
			Description("Topic to publish to. Supports interpolation.").
			Example("hazdev.events").
			Example("${! meta(\"hazdev_topic\") }").
			Default("${! meta(\"" + topicMetadataKey + "\") }")).
		Field(service.NewStringField("broker_address").
			Description("Comma separated list of seed brokers.").
			Default(defaultBrokerAddress)).
		Field(service.NewStringField("client_id").
			Description("Client id carried in heartbeats. A random one is generated when empty.").
			Default("")).
		Field(service.NewIntField("heartbeat_interval").
			Description("Seconds between heartbeats. Negative means after every message, 0 disables heartbeats.").
			Default(0)).
		Field(service.NewStringMapField("properties").
			Description("Additional client properties such as acks or linger.ms.").
			Advanced().
			Default(map[string]any{})).
		Field(service.NewBoolField("auto_create_topic").
			Description("Create missing topics before the first write to them.").
			Advanced().
			Default(false)).
		Field(service.NewIntField("partitions").
			Description("Partition count used when auto_create_topic creates a topic.").
			Advanced().
			Default(defaultPartitions))
}

type hazdevOutputConfig struct {
	topic             *service.InterpolatedString
	brokerAddress     string
	clientID          string
	heartbeatInterval int
	properties        map[string]string
	autoCreateTopic   bool
	partitions        int32
}

type hazdevOutput struct {
	config  hazdevOutputConfig
	sender  MessageSender
	log     *service.Logger
	metrics *HazdevOutputMetrics

	mu            sync.Mutex
	ensuredTopics map[string]struct{}
}

func parseOutputConfig(conf *service.ParsedConfig) (hazdevOutputConfig, error) {
	var (
		config hazdevOutputConfig
		err    error
	)

	if config.topic, err = conf.FieldInterpolatedString("topic"); err != nil {
		return config, fmt.Errorf("error while parsing topic field from the config: %v", err)
	}
	if config.brokerAddress, err = conf.FieldString("broker_address"); err != nil {
		return config, fmt.Errorf("error while parsing broker_address field from the config: %v", err)
	}
	if config.brokerAddress == "" {
		config.brokerAddress = defaultBrokerAddress
	}
	if config.clientID, err = conf.FieldString("client_id"); err != nil {
		return config, fmt.Errorf("error while parsing client_id field from the config: %v", err)
	}
	if config.heartbeatInterval, err = conf.FieldInt("heartbeat_interval"); err != nil {
		return config, fmt.Errorf("error while parsing heartbeat_interval field from the config: %v", err)
	}
	if config.properties, err = conf.FieldStringMap("properties"); err != nil {
		return config, fmt.Errorf("error while parsing properties field from the config: %v", err)
	}
	if config.autoCreateTopic, err = conf.FieldBool("auto_create_topic"); err != nil {
		return config, fmt.Errorf("error while parsing auto_create_topic field from the config: %v", err)
	}
	partitions, err := conf.FieldInt("partitions")
	if err != nil {
		return config, fmt.Errorf("error while parsing partitions field from the config: %v", err)
	}
	if partitions <= 0 {
		return config, fmt.Errorf("partitions must be positive, got %d", partitions)
	}
	config.partitions = int32(partitions)

	return config, nil
}

// heartbeatPolicy maps heartbeat_interval onto a scheduler policy
func (c hazdevOutputConfig) heartbeatPolicy() heartbeat.IntervalPolicy {
	return heartbeat.PolicyFromSeconds(int64(c.heartbeatInterval))
}

// brokerConfig builds the producer broker config from the plugin fields
func (c hazdevOutputConfig) brokerConfig() broker.BrokerConfig {
	props := maps.Clone(c.properties)
	if props == nil {
		props = map[string]string{}
	}
	if c.clientID != "" {
		props[kafka.PropClientID] = c.clientID
	}
	return broker.NewBrokerConfig(broker.ProducerConfigType, c.brokerAddress, props)
}

func newHazdevOutput(conf *service.ParsedConfig, mgr *service.Resources) (service.BatchOutput, service.BatchPolicy, int, error) {
	// maximum number of messages that can be in processing simultaneously before requiring acknowledgements
	maxInFlight := 100

	batchPolicy := service.BatchPolicy{
		Count:  100,     //max number of messages per batch
		Period: "100ms", // timeout to ensure timely delivery even if the count aren't met
	}

	config, err := parseOutputConfig(conf)
	if err != nil {
		return nil, batchPolicy, 0, err
	}

	producer, err := broker.NewProducer(config.brokerConfig(), config.heartbeatPolicy(), nil)
	if err != nil {
		return nil, batchPolicy, 0, fmt.Errorf("error while creating the hazdev producer: %v", err)
	}

	return newHazdevOutputWithSender(producer, config, mgr.Logger(), NewHazdevOutputMetrics(mgr.Metrics())), batchPolicy, maxInFlight, nil
}

// Testable constructor that accepts the sender
func newHazdevOutputWithSender(sender MessageSender, config hazdevOutputConfig, logger *service.Logger, metrics *HazdevOutputMetrics) *hazdevOutput {
	return &hazdevOutput{
		config:        config,
		sender:        sender,
		log:           logger,
		metrics:       metrics,
		ensuredTopics: make(map[string]struct{}),
	}
}

// Connect connects the underlying producer
func (o *hazdevOutput) Connect(ctx context.Context) error {
	o.log.Infof("Connecting hazdev producer %s to %s", o.sender.ClientID(), o.config.brokerAddress)
	if err := o.sender.Connect(ctx); err != nil {
		return fmt.Errorf("error while connecting to the hazdev broker %s: %v", o.config.brokerAddress, err)
	}
	return nil
}

// ensureTopic creates topic once per output when auto_create_topic is set
func (o *hazdevOutput) ensureTopic(ctx context.Context, topic string) error {
	if !o.config.autoCreateTopic {
		return nil
	}

	o.mu.Lock()
	_, done := o.ensuredTopics[topic]
	o.mu.Unlock()
	if done {
		return nil
	}

	if err := o.sender.EnsureTopic(ctx, topic, o.config.partitions); err != nil {
		return fmt.Errorf("error while ensuring topic '%s': %v", topic, err)
	}

	o.mu.Lock()
	o.ensuredTopics[topic] = struct{}{}
	o.mu.Unlock()
	o.metrics.TopicsCreated.Incr(1)
	return nil
}

// WriteBatch implements service.BatchOutput.
func (o *hazdevOutput) WriteBatch(ctx context.Context, msgs service.MessageBatch) error {
	for i, msg := range msgs {
		topic, err := o.config.topic.TryString(msg)
		if err != nil {
			return fmt.Errorf("failed to resolve topic field in message %d: %v", i, err)
		}

		// TryString sets the topic to "null" when the metadata is missing
		if topic == "" || topic == "null" {
			return fmt.Errorf("topic is not set or is empty in message %d, topic is mandatory", i)
		}

		if err := o.ensureTopic(ctx, topic); err != nil {
			return err
		}

		data, err := msg.AsBytes()
		if err != nil {
			return fmt.Errorf("error getting content of message %d: %v", i, err)
		}

		if err := o.sender.Send(ctx, topic, data); err != nil {
			o.metrics.SendErrors.Incr(1)
			if errors.Is(err, kafka.ErrNotConnected) {
				return service.ErrNotConnected
			}
			return fmt.Errorf("error writing message %d to topic '%s': %v", i, topic, err)
		}
		o.metrics.MessagesSent.Incr(1)
	}

	o.log.Debugf("Successfully sent %d messages", len(msgs))
	return nil
}

// Close closes the underlying producer
func (o *hazdevOutput) Close(ctx context.Context) error {
	o.log.Infof("Attempting to close the hazdev producer")
	if err := o.sender.Close(); err != nil {
		return fmt.Errorf("error while closing the hazdev producer: %v", err)
	}
	o.log.Infof("hazdev producer closed successfully")
	return nil
}
