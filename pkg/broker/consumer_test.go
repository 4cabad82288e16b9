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

package broker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka/kafkatest"
)

func encodeHeartbeat(msg heartbeat.Message) []byte {
	out, err := heartbeat.Encode(msg)
	Expect(err).NotTo(HaveOccurred())
	return out
}

var _ = Describe("Consumer", func() {
	var (
		ctx    context.Context
		mock   *kafkatest.MockConsumerClient
		now    time.Time
		dir    string
		config broker.BrokerConfig
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = kafkatest.NewMockConsumerClient()
		now = time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)
		dir = GinkgoT().TempDir()
		config = broker.NewBrokerConfig(broker.ConsumerConfigType, "localhost:9092", map[string]string{
			"group.id": "consumers",
		})
	})

	newConsumer := func(heartbeatDir string, topics ...string) *broker.Consumer {
		c, err := broker.NewConsumer(config, heartbeatDir, zaptest.NewLogger(GinkgoT()).Sugar())
		Expect(err).NotTo(HaveOccurred())
		c.WithClient(mock).WithClock(func() time.Time { return now })
		Expect(c.Connect(ctx)).To(Succeed())
		Expect(c.Subscribe(ctx, topics...)).To(Succeed())
		return c
	}

	It("rejects a producer config", func() {
		_, err := broker.NewConsumer(broker.NewBrokerConfig(broker.ProducerConfigType, "b:9092", nil), "", nil)
		Expect(err).To(MatchError(broker.ErrWrongConfigType))
	})

	It("forwards application data unchanged", func() {
		c := newConsumer("", "events")
		mock.EnqueueValues("events", []byte("first"), []byte(`{"Type":"Other"}`))

		msgs, err := c.PollString(ctx, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(Equal([]string{"first", `{"Type":"Other"}`}))
		Expect(c.LastHeartbeatTime().IsZero()).To(BeTrue())
	})

	It("hides heartbeats and reports no data when only heartbeats arrived", func() {
		c := newConsumer("", "events")
		mock.EnqueueValues("events", encodeHeartbeat(heartbeat.New(now.Add(-time.Minute), "events", "p1")))

		msgs, err := c.Poll(ctx, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
		Expect(c.LastHeartbeatTime()).To(Equal(now))
		Expect(c.IsStale(time.Minute, now.Add(time.Second))).To(BeFalse())
	})

	It("ignores heartbeats for topics it is not subscribed to", func() {
		c := newConsumer(dir, "events")
		mock.EnqueueValues("events",
			encodeHeartbeat(heartbeat.New(now, "other", "p1")),
			[]byte("payload"),
		)

		msgs, err := c.PollString(ctx, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(Equal([]string{"payload"}))
		Expect(c.LastHeartbeatTime().IsZero()).To(BeTrue())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("writes the status file for accepted heartbeats", func() {
		c := newConsumer(dir, "events")
		msg := heartbeat.New(now, "events", "p1")
		mock.EnqueueValues("events", encodeHeartbeat(msg))

		_, err := c.Poll(ctx, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(filepath.Join(dir, "events_p1.heartbeat"))
		Expect(err).NotTo(HaveOccurred())
		Expect(heartbeat.Decode(data).Message).To(Equal(msg))
	})

	It("treats a poll timeout as no data", func() {
		c := newConsumer("", "events")
		msgs, err := c.Poll(ctx, 5*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("waits for the context when the timeout is negative", func() {
		c := newConsumer("", "events")
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := c.Poll(cctx, -1)
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("returns transport errors when nothing was received", func() {
		c := newConsumer("", "events")
		mock.Enqueue(&kafkatest.MockFetches{Error: errors.New("leader not available")})

		_, err := c.Poll(ctx, 10*time.Millisecond)
		Expect(err).To(MatchError(ContainSubstring("leader not available")))
	})

	It("keeps records that arrived alongside an error", func() {
		c := newConsumer("", "events")
		mock.Enqueue(&kafkatest.MockFetches{
			Records: []*kgo.Record{{Topic: "events", Value: []byte("kept")}},
			Error:   errors.New("partition moved"),
		})

		msgs, err := c.PollString(ctx, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(Equal([]string{"kept"}))
	})

	It("replaces the subscription on resubscribe", func() {
		c := newConsumer("", "events", "alarms")
		Expect(mock.Topics()).To(ConsistOf("events", "alarms"))

		Expect(c.Subscribe(ctx, "alarms", "status")).To(Succeed())
		Expect(mock.Topics()).To(ConsistOf("alarms", "status"))
		Expect(c.Topics()).To(Equal([]string{"alarms", "status"}))

		mock.EnqueueValues("events", encodeHeartbeat(heartbeat.New(now, "events", "p1")))
		_, err := c.Poll(ctx, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.LastHeartbeatTime().IsZero()).To(BeTrue())
	})

	It("refuses to poll before subscribing", func() {
		c, err := broker.NewConsumer(config, "", nil)
		Expect(err).NotTo(HaveOccurred())
		c.WithClient(mock)
		_, err = c.Poll(ctx, time.Millisecond)
		Expect(err).To(MatchError(broker.ErrNoTopics))
	})

	It("rejects empty subscriptions", func() {
		c := newConsumer("", "events")
		Expect(c.Subscribe(ctx)).To(MatchError(broker.ErrNoTopics))
		Expect(c.Subscribe(ctx, "")).To(MatchError(broker.ErrEmptyTopic))
	})

	It("commits through the client", func() {
		c := newConsumer("", "events")
		Expect(c.Commit(ctx)).To(Succeed())
		Expect(mock.CommitCount()).To(Equal(1))
	})
})
