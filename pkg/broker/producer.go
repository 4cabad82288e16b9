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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
)

// Producer sends application messages and interleaves heartbeats on the
// same topics according to its interval policy.
// Send, SendString and SendHeartbeat may be called concurrently once
// Connect has returned.
type Producer struct {
	config     BrokerConfig
	client     kafka.MessagePublisher
	scheduleMu sync.Mutex
	scheduler  *heartbeat.Scheduler
	clientID   string
	now        func() time.Time
	log        *zap.SugaredLogger
	logLimiter *rate.Limiter
}

// NewProducer validates cfg and creates an unconnected producer. When cfg
// has no client.id one is generated so that heartbeats stay valid.
func NewProducer(cfg BrokerConfig, policy heartbeat.IntervalPolicy, log *zap.SugaredLogger) (*Producer, error) {
	if err := cfg.Validate(ProducerConfigType); err != nil {
		return nil, err
	}

	clientID := cfg.Property(kafka.PropClientID)
	if clientID == "" {
		clientID = "hazdev-producer-" + uuid.NewString()
		cfg = cfg.withProperty(kafka.PropClientID, clientID)
	}

	return &Producer{
		config:     cfg,
		client:     kafka.NewClient(),
		scheduler:  heartbeat.NewScheduler(policy),
		clientID:   clientID,
		now:        time.Now,
		log:        logger.OrFor(log, logger.ComponentProducer),
		logLimiter: rate.NewLimiter(rate.Every(1*time.Second), 1), // Allows 1 message per second
	}, nil
}

// WithClient replaces the transport, mainly for tests
func (p *Producer) WithClient(client kafka.MessagePublisher) *Producer {
	p.client = client
	return p
}

// WithClock replaces the time source used for scheduling and stamping heartbeats
func (p *Producer) WithClock(now func() time.Time) *Producer {
	p.now = now
	return p
}

// ClientID identifies this producer in its heartbeats
func (p *Producer) ClientID() string {
	return p.clientID
}

// Policy returns the heartbeat interval policy
func (p *Producer) Policy() heartbeat.IntervalPolicy {
	return p.scheduler.Policy()
}

// LastHeartbeatTime is when the scheduler last decided to emit
func (p *Producer) LastHeartbeatTime() time.Time {
	p.scheduleMu.Lock()
	defer p.scheduleMu.Unlock()
	return p.scheduler.LastHeartbeatTime()
}

// Connect creates the Kafka client from the configured properties
func (p *Producer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(kafka.Brokers(p.config.Properties)) == 0 {
		return ErrNoBrokers
	}

	opts, unknown, err := kafka.OptionsFromProperties(p.config.Properties)
	if err != nil {
		return fmt.Errorf("invalid producer properties: %w", err)
	}
	if len(unknown) > 0 {
		p.log.Warnf("Ignoring unsupported producer properties: %v", unknown)
	}

	if err := p.client.Connect(opts...); err != nil {
		return fmt.Errorf("failed to create producer client: %w", err)
	}

	p.log.Infof("Producer %s connected to %v, heartbeat policy %s", p.clientID, kafka.Brokers(p.config.Properties), p.scheduler.Policy())
	return nil
}

// EnsureTopic creates topic with the given partition count if it is missing
func (p *Producer) EnsureTopic(ctx context.Context, topic string, partitions int32) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return kafka.EnsureTopic(ctx, p.client, topic, partitions)
}

// Send produces data to topic and then, if the scheduler says one is due,
// a heartbeat to the same topic. Only the data send's error is returned.
func (p *Producer) Send(ctx context.Context, topic string, data []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	err := p.client.ProduceSync(ctx, []kafka.Record{{Topic: topic, Value: data}})
	p.maybeSendHeartbeat(ctx, topic)

	if err != nil {
		return fmt.Errorf("failed to send message to topic %q: %w", topic, err)
	}
	return nil
}

// SendString is Send for text messages
func (p *Producer) SendString(ctx context.Context, topic, message string) error {
	return p.Send(ctx, topic, []byte(message))
}

// SendHeartbeat sends a heartbeat to topic right away, regardless of the
// interval policy, and reports the outcome.
func (p *Producer) SendHeartbeat(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return p.sendHeartbeat(ctx, heartbeat.New(p.now(), topic, p.clientID))
}

func (p *Producer) maybeSendHeartbeat(ctx context.Context, topic string) {
	// the decision is serialized, the send is not
	p.scheduleMu.Lock()
	now := p.now()
	due := p.scheduler.ShouldEmit(now)
	p.scheduleMu.Unlock()
	if !due {
		return
	}

	if err := p.sendHeartbeat(ctx, heartbeat.New(now, topic, p.clientID)); err != nil {
		heartbeat.HeartbeatSendFailures.Inc()
		if p.logLimiter.Allow() {
			p.log.Warnf("Failed to send heartbeat to topic %q: %v", topic, err)
		}
	}
}

func (p *Producer) sendHeartbeat(ctx context.Context, msg heartbeat.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("refusing to send invalid heartbeat: %w", err)
	}

	payload, err := heartbeat.Encode(msg)
	if err != nil {
		return err
	}

	if err := p.client.ProduceSync(ctx, []kafka.Record{{Topic: msg.Topic, Value: payload}}); err != nil {
		return fmt.Errorf("failed to send heartbeat to topic %q: %w", msg.Topic, err)
	}

	heartbeat.HeartbeatsEmitted.Inc()
	p.log.Debugf("Sent %s", msg)
	return nil
}

// Close closes the underlying client
func (p *Producer) Close() error {
	return p.client.Close()
}
