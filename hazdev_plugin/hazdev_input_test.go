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
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka/kafkatest"
)

var _ = Describe("hazdev_broker input", func() {
	var (
		ctx  context.Context
		mock *kafkatest.MockConsumerClient
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = kafkatest.NewMockConsumerClient()
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	parse := func(yaml string) hazdevInputConfig {
		parsed, err := inputConfig().ParseYAML(yaml, nil)
		Expect(err).NotTo(HaveOccurred())
		config, err := parseInputConfig(parsed)
		Expect(err).NotTo(HaveOccurred())
		return config
	}

	newInput := func(config hazdevInputConfig) *hazdevInput {
		consumer, err := broker.NewConsumer(config.brokerConfig(), config.heartbeatDirectory, nil)
		Expect(err).NotTo(HaveOccurred())
		consumer.WithClient(mock).WithClock(func() time.Time { return now })

		input := newHazdevInputWithReceiver(consumer, config, service.MockResources().Logger(), NewMockMetrics())
		input.now = func() time.Time { return now }
		Expect(input.Connect(ctx)).To(Succeed())
		return input
	}

	encode := func(msg heartbeat.Message) []byte {
		out, err := heartbeat.Encode(msg)
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	Describe("config", func() {
		It("applies defaults", func() {
			config := parse(`topics: [ events ]`)
			Expect(config.topics).To(Equal([]string{"events"}))
			Expect(config.brokerAddress).To(Equal(defaultBrokerAddress))
			Expect(config.consumerGroup).To(Equal(defaultConsumerGroup))
			Expect(config.pollTimeout).To(Equal(time.Second))
			Expect(config.heartbeatTimeout).To(BeZero())
		})

		It("requires at least one topic", func() {
			parsed, err := inputConfig().ParseYAML(`topics: []`, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = parseInputConfig(parsed)
			Expect(err).To(HaveOccurred())
		})

		It("disables auto commit and sets the group unless overridden", func() {
			bc := parse(`topics: [ events ]`).brokerConfig()
			Expect(bc.Type).To(Equal(broker.ConsumerConfigType))
			Expect(bc.Property(kafka.PropGroupID)).To(Equal(defaultConsumerGroup))
			Expect(bc.Property(kafka.PropEnableAutoCommit)).To(Equal("false"))

			bc = parse(`
topics: [ events ]
properties:
  group.id: custom
  enable.auto.commit: "true"
`).brokerConfig()
			Expect(bc.Property(kafka.PropGroupID)).To(Equal("custom"))
			Expect(bc.Property(kafka.PropEnableAutoCommit)).To(Equal("true"))
		})
	})

	It("subscribes on connect", func() {
		newInput(parse(`topics: [ events, alarms ]`))
		Expect(mock.IsConnectCalled()).To(BeTrue())
		Expect(mock.Topics()).To(ConsistOf("events", "alarms"))
	})

	Describe("ReadBatch", func() {
		It("forwards application messages with their topic and commits on ack", func() {
			input := newInput(parse(`
topics: [ events ]
poll_timeout: 10ms
`))
			mock.EnqueueValues("events",
				[]byte("first"),
				encode(heartbeat.New(now, "events", "p1")),
				[]byte("second"),
			)

			batch, ack, err := input.ReadBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch).To(HaveLen(2))

			first, err := batch[0].AsBytes()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(first)).To(Equal("first"))
			topic, ok := batch[1].MetaGet(topicMetadataKey)
			Expect(ok).To(BeTrue())
			Expect(topic).To(Equal("events"))

			Expect(ack(ctx, nil)).To(Succeed())
			Expect(mock.CommitCount()).To(Equal(1))
		})

		It("does not commit a nacked batch", func() {
			input := newInput(parse(`topics: [ events ]`))
			mock.EnqueueValues("events", []byte("payload"))

			_, ack, err := input.ReadBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ack(ctx, errors.New("downstream failed"))).To(Succeed())
			Expect(mock.CommitCount()).To(BeZero())
		})

		It("returns the commit error from the ack", func() {
			mock.WithCommitRecordsFunc(func(context.Context) error { return errors.New("rebalancing") })
			input := newInput(parse(`topics: [ events ]`))
			mock.EnqueueValues("events", []byte("payload"))

			_, ack, err := input.ReadBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ack(ctx, nil)).To(MatchError("rebalancing"))
		})

		It("returns an empty batch when only heartbeats arrived", func() {
			input := newInput(parse(`
topics: [ events ]
poll_timeout: 10ms
`))
			mock.EnqueueValues("events", encode(heartbeat.New(now, "events", "p1")))

			batch, ack, err := input.ReadBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch).To(BeEmpty())
			Expect(ack(ctx, nil)).To(Succeed())
			Expect(mock.CommitCount()).To(BeZero())
		})

		It("returns an empty batch when the poll times out", func() {
			input := newInput(parse(`
topics: [ events ]
poll_timeout: 10ms
`))

			batch, _, err := input.ReadBatch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch).To(BeEmpty())
		})

		It("maps a disconnected client to ErrNotConnected", func() {
			mock.WithPollFetchesFunc(func(context.Context) kafka.Fetches {
				return &kafkatest.MockFetches{Error: kafka.ErrNotConnected}
			})
			input := newInput(parse(`topics: [ events ]`))

			_, _, err := input.ReadBatch(ctx)
			Expect(err).To(MatchError(service.ErrNotConnected))
		})

		It("returns the context error once the context is done", func() {
			input := newInput(parse(`topics: [ events ]`))
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, _, err := input.ReadBatch(cancelled)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	It("writes heartbeat status files into the configured directory", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "status")
		input := newInput(parse(`
topics: [ events ]
poll_timeout: 10ms
heartbeat_directory: ` + dir))

		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		mock.EnqueueValues("events", encode(heartbeat.New(now, "events", "p1")))
		_, _, err = input.ReadBatch(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(filepath.Join(dir, "events_p1"+heartbeat.StatusFileExtension)).To(BeAnExistingFile())
	})

	It("tracks heartbeat staleness", func() {
		input := newInput(parse(`
topics: [ events ]
poll_timeout: 10ms
heartbeat_timeout: 1m
`))

		_, _, err := input.ReadBatch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(input.stale).To(BeTrue())

		mock.EnqueueValues("events", encode(heartbeat.New(now, "events", "p1")))
		_, _, err = input.ReadBatch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(input.stale).To(BeFalse())

		now = now.Add(2 * time.Minute)
		_, _, err = input.ReadBatch(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(input.stale).To(BeTrue())
	})

	It("closes the consumer", func() {
		input := newInput(parse(`topics: [ events ]`))
		Expect(input.Close(ctx)).To(Succeed())
		Expect(mock.IsCloseCalled()).To(BeTrue())
	})
})
