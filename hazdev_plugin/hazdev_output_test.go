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
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka/kafkatest"
)

var _ = Describe("hazdev_broker output", func() {
	var (
		ctx  context.Context
		mock *kafkatest.MockClient
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = kafkatest.NewMockClient()
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	parse := func(yaml string) hazdevOutputConfig {
		parsed, err := outputConfig().ParseYAML(yaml, nil)
		Expect(err).NotTo(HaveOccurred())
		config, err := parseOutputConfig(parsed)
		Expect(err).NotTo(HaveOccurred())
		return config
	}

	newOutput := func(config hazdevOutputConfig) *hazdevOutput {
		producer, err := broker.NewProducer(config.brokerConfig(), config.heartbeatPolicy(), nil)
		Expect(err).NotTo(HaveOccurred())
		producer.WithClient(mock).WithClock(func() time.Time { return now })

		output := newHazdevOutputWithSender(producer, config, service.MockResources().Logger(), NewMockOutputMetrics())
		Expect(output.Connect(ctx)).To(Succeed())
		return output
	}

	Describe("config", func() {
		It("applies defaults", func() {
			config := parse(`topic: events`)
			Expect(config.brokerAddress).To(Equal(defaultBrokerAddress))
			Expect(config.heartbeatPolicy().IsDisabled()).To(BeTrue())
			Expect(config.autoCreateTopic).To(BeFalse())
			Expect(config.partitions).To(Equal(int32(1)))
		})

		It("maps heartbeat_interval onto the scheduler policy", func() {
			Expect(parse("heartbeat_interval: -1").heartbeatPolicy().IsAlways()).To(BeTrue())
			Expect(parse("heartbeat_interval: 30").heartbeatPolicy().Interval()).To(Equal(30 * time.Second))
		})

		It("carries broker address, client id and properties into the broker config", func() {
			config := parse(`
broker_address: "b1:9092,b2:9092"
client_id: line-4
properties:
  acks: all
`)
			bc := config.brokerConfig()
			Expect(bc.Type).To(Equal(broker.ProducerConfigType))
			Expect(bc.Property(kafka.PropBootstrapServers)).To(Equal("b1:9092,b2:9092"))
			Expect(bc.Property(kafka.PropClientID)).To(Equal("line-4"))
			Expect(bc.Property(kafka.PropAcks)).To(Equal("all"))
		})

		It("rejects a non positive partition count", func() {
			parsed, err := outputConfig().ParseYAML("partitions: 0", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = parseOutputConfig(parsed)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("WriteBatch", func() {
		It("sends data followed by a heartbeat when one is due", func() {
			output := newOutput(parse(`
topic: events
client_id: line-4
heartbeat_interval: -1
`))

			batch := service.MessageBatch{
				service.NewMessage([]byte("one")),
				service.NewMessage([]byte("two")),
			}
			Expect(output.WriteBatch(ctx, batch)).To(Succeed())

			produced := mock.Produced()
			Expect(produced).To(HaveLen(4))
			Expect(string(produced[0].Value)).To(Equal("one"))
			Expect(string(produced[2].Value)).To(Equal("two"))

			for _, idx := range []int{1, 3} {
				decoded := heartbeat.Decode(produced[idx].Value)
				Expect(decoded.Outcome).To(Equal(heartbeat.OutcomeValid))
				Expect(decoded.Message.Topic).To(Equal("events"))
				Expect(decoded.Message.ClientID).To(Equal("line-4"))
			}
		})

		It("sends a single due heartbeat across concurrent batches", func() {
			output := newOutput(parse(`
topic: events
client_id: line-4
heartbeat_interval: 10
`))

			const writers = 16
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer GinkgoRecover()
					defer wg.Done()
					batch := service.MessageBatch{service.NewMessage([]byte(fmt.Sprintf("data-%d", w)))}
					Expect(output.WriteBatch(ctx, batch)).To(Succeed())
				}(w)
			}
			wg.Wait()

			produced := mock.Produced()
			Expect(produced).To(HaveLen(writers + 1))
			heartbeats := 0
			for _, r := range produced {
				if heartbeat.Decode(r.Value).Outcome == heartbeat.OutcomeValid {
					heartbeats++
				}
			}
			Expect(heartbeats).To(Equal(1))
		})

		It("takes the topic from metadata by default", func() {
			output := newOutput(parse(`{}`))

			msg := service.NewMessage([]byte("payload"))
			msg.MetaSet(topicMetadataKey, "routed")
			Expect(output.WriteBatch(ctx, service.MessageBatch{msg})).To(Succeed())

			produced := mock.Produced()
			Expect(produced).To(HaveLen(1))
			Expect(produced[0].Topic).To(Equal("routed"))
		})

		It("fails when the topic cannot be resolved", func() {
			output := newOutput(parse(`{}`))

			err := output.WriteBatch(ctx, service.MessageBatch{service.NewMessage([]byte("payload"))})
			Expect(err).To(MatchError(ContainSubstring("topic is not set")))
			Expect(mock.Produced()).To(BeEmpty())
		})

		It("returns the data send error", func() {
			mock.WithProduceSyncFunc(func(context.Context, []kafka.Record) error {
				return errors.New("broker down")
			})
			output := newOutput(parse(`topic: events`))

			err := output.WriteBatch(ctx, service.MessageBatch{service.NewMessage([]byte("payload"))})
			Expect(err).To(MatchError(ContainSubstring("broker down")))
		})

		It("reports not connected when the client was never connected", func() {
			config := parse(`topic: events`)
			producer, err := broker.NewProducer(config.brokerConfig(), config.heartbeatPolicy(), nil)
			Expect(err).NotTo(HaveOccurred())
			output := newHazdevOutputWithSender(producer, config, service.MockResources().Logger(), NewMockOutputMetrics())

			err = output.WriteBatch(ctx, service.MessageBatch{service.NewMessage([]byte("payload"))})
			Expect(err).To(MatchError(service.ErrNotConnected))
		})

		It("creates missing topics once", func() {
			var created []string
			mock.WithIsTopicExistsFunc(func(context.Context, string) (bool, int, error) {
				return false, 0, nil
			})
			mock.WithCreateTopicFunc(func(_ context.Context, topic string, partitions int32) error {
				Expect(partitions).To(Equal(int32(3)))
				created = append(created, topic)
				return nil
			})
			output := newOutput(parse(`
topic: events
auto_create_topic: true
partitions: 3
`))

			batch := service.MessageBatch{
				service.NewMessage([]byte("one")),
				service.NewMessage([]byte("two")),
			}
			Expect(output.WriteBatch(ctx, batch)).To(Succeed())
			Expect(output.WriteBatch(ctx, batch)).To(Succeed())
			Expect(created).To(Equal([]string{"events"}))
		})
	})

	It("closes the producer", func() {
		output := newOutput(parse(`topic: events`))
		Expect(output.Close(ctx)).To(Succeed())
		Expect(mock.IsCloseCalled()).To(BeTrue())
	})
})
