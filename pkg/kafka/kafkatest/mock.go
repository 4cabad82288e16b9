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

// Package kafkatest provides in-memory stand-ins for the kafka package
// interfaces.
package kafkatest

import (
	"context"
	"slices"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
)

var (
	_ kafka.MessagePublisher = (*MockClient)(nil)
	_ kafka.MessageConsumer  = (*MockConsumerClient)(nil)
	_ kafka.Fetches          = (*MockFetches)(nil)
)

// MockClient records every produced record. Behaviour can be overridden
// with the With...Func setters.
type MockClient struct {
	mu               sync.Mutex
	connectCalled    bool
	closeCalled      bool
	connectOpts      []kgo.Opt
	produced         []kafka.Record
	connectFunc      func(...kgo.Opt) error
	produceSyncFunc  func(context.Context, []kafka.Record) error
	isTopicExistFunc func(context.Context, string) (bool, int, error)
	createTopicFunc  func(context.Context, string, int32) error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Connect(opts ...kgo.Opt) error {
	m.mu.Lock()
	m.connectCalled = true
	m.connectOpts = opts
	m.mu.Unlock()
	if m.connectFunc != nil {
		return m.connectFunc(opts...)
	}
	return nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

// ProduceSync stores records that the produce func (if any) accepted
func (m *MockClient) ProduceSync(ctx context.Context, records []kafka.Record) error {
	if m.produceSyncFunc != nil {
		if err := m.produceSyncFunc(ctx, records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.produced = append(m.produced, records...)
	return nil
}

func (m *MockClient) IsTopicExists(ctx context.Context, topic string) (bool, int, error) {
	if m.isTopicExistFunc != nil {
		return m.isTopicExistFunc(ctx, topic)
	}
	return true, 1, nil
}

func (m *MockClient) CreateTopic(ctx context.Context, topic string, partitions int32) error {
	if m.createTopicFunc != nil {
		return m.createTopicFunc(ctx, topic, partitions)
	}
	return nil
}

func (m *MockClient) IsConnectCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalled
}

func (m *MockClient) IsCloseCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalled
}

// ConnectOpts returns the options passed to the last Connect call
func (m *MockClient) ConnectOpts() []kgo.Opt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectOpts
}

// Produced returns a copy of everything produced so far
func (m *MockClient) Produced() []kafka.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.produced)
}

func (m *MockClient) WithConnectFunc(f func(...kgo.Opt) error) {
	m.connectFunc = f
}

func (m *MockClient) WithProduceSyncFunc(f func(context.Context, []kafka.Record) error) {
	m.produceSyncFunc = f
}

func (m *MockClient) WithIsTopicExistsFunc(f func(context.Context, string) (bool, int, error)) {
	m.isTopicExistFunc = f
}

func (m *MockClient) WithCreateTopicFunc(f func(context.Context, string, int32) error) {
	m.createTopicFunc = f
}

// MockConsumerClient serves queued fetches. Once the queue is empty,
// PollFetches blocks until ctx ends and returns its error as a fetch error.
type MockConsumerClient struct {
	mu              sync.Mutex
	connectCalled   bool
	closeCalled     bool
	commitCalled    int
	topics          []string
	queue           []kafka.Fetches
	connectFunc     func(...kgo.Opt) error
	pollFetchesFunc func(context.Context) kafka.Fetches
	commitFunc      func(context.Context) error
}

func NewMockConsumerClient() *MockConsumerClient {
	return &MockConsumerClient{}
}

func (m *MockConsumerClient) Connect(opts ...kgo.Opt) error {
	m.mu.Lock()
	m.connectCalled = true
	m.mu.Unlock()
	if m.connectFunc != nil {
		return m.connectFunc(opts...)
	}
	return nil
}

func (m *MockConsumerClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *MockConsumerClient) AddTopics(topics ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		if !slices.Contains(m.topics, t) {
			m.topics = append(m.topics, t)
		}
	}
}

func (m *MockConsumerClient) RemoveTopics(topics ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = slices.DeleteFunc(m.topics, func(t string) bool {
		return slices.Contains(topics, t)
	})
}

func (m *MockConsumerClient) PollFetches(ctx context.Context) kafka.Fetches {
	if m.pollFetchesFunc != nil {
		return m.pollFetchesFunc(ctx)
	}

	m.mu.Lock()
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return next
	}
	m.mu.Unlock()

	<-ctx.Done()
	return &MockFetches{Error: ctx.Err()}
}

func (m *MockConsumerClient) CommitRecords(ctx context.Context) error {
	m.mu.Lock()
	m.commitCalled++
	m.mu.Unlock()
	if m.commitFunc != nil {
		return m.commitFunc(ctx)
	}
	return nil
}

// Enqueue adds fetches to be returned by subsequent polls, in order
func (m *MockConsumerClient) Enqueue(fetches ...kafka.Fetches) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, fetches...)
}

// EnqueueValues queues one fetch holding a record per value, all on topic
func (m *MockConsumerClient) EnqueueValues(topic string, values ...[]byte) {
	records := make([]*kgo.Record, 0, len(values))
	for _, v := range values {
		records = append(records, &kgo.Record{Topic: topic, Value: v})
	}
	m.Enqueue(&MockFetches{Records: records})
}

// Topics returns the topics currently being consumed
func (m *MockConsumerClient) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.topics)
}

func (m *MockConsumerClient) IsConnectCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalled
}

func (m *MockConsumerClient) IsCloseCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalled
}

// CommitCount returns how many times CommitRecords was called
func (m *MockConsumerClient) CommitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitCalled
}

func (m *MockConsumerClient) WithConnectFunc(f func(...kgo.Opt) error) {
	m.connectFunc = f
}

func (m *MockConsumerClient) WithPollFetchesFunc(f func(context.Context) kafka.Fetches) {
	m.pollFetchesFunc = f
}

func (m *MockConsumerClient) WithCommitRecordsFunc(f func(context.Context) error) {
	m.commitFunc = f
}

// MockFetches is a canned poll result
type MockFetches struct {
	Records []*kgo.Record
	Error   error
}

func (m *MockFetches) Empty() bool {
	return len(m.Records) == 0
}

func (m *MockFetches) Err() error {
	return m.Error
}

func (m *MockFetches) EachRecord(fn func(*kgo.Record)) {
	for _, record := range m.Records {
		fn(record)
	}
}

func (m *MockFetches) EachError(fn func(string, int32, error)) {
	if m.Error != nil {
		fn("", -1, m.Error)
	}
}

func (m *MockFetches) Err0() error {
	return m.Error
}
