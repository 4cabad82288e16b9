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

package kafka

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Fetches is the subset of kgo.Fetches the consumer needs, so that tests
// can hand back canned records
type Fetches interface {
	Empty() bool
	Err() error
	EachRecord(fn func(*kgo.Record))
	EachError(fn func(string, int32, error))
	Err0() error
}

// KafkaFetchesAdapter adapts kgo.Fetches to Fetches
type KafkaFetchesAdapter struct {
	fetches kgo.Fetches
}

func NewKafkaFetchesAdapter(fetches kgo.Fetches) Fetches {
	return &KafkaFetchesAdapter{fetches: fetches}
}

func (k *KafkaFetchesAdapter) Empty() bool {
	return k.fetches.Empty()
}

func (k *KafkaFetchesAdapter) Err() error {
	return k.fetches.Err()
}

func (k *KafkaFetchesAdapter) EachRecord(fn func(*kgo.Record)) {
	k.fetches.EachRecord(fn)
}

func (k *KafkaFetchesAdapter) EachError(fn func(string, int32, error)) {
	k.fetches.EachError(fn)
}

func (k *KafkaFetchesAdapter) Err0() error {
	return k.fetches.Err0()
}

type Consumer interface {
	AddTopics(topics ...string)
	RemoveTopics(topics ...string)
	PollFetches(context.Context) Fetches
	CommitRecords(context.Context) error
}

type MessageConsumer interface {
	ConnectionHandler
	Consumer
}

// ConsumerClient is a consuming wrapper around the franz-go client
type ConsumerClient struct {
	client *kgo.Client
}

// NewConsumerClient returns an unconnected consumer
func NewConsumerClient() MessageConsumer {
	return &ConsumerClient{}
}

// Connect creates the franz-go client with the given options
func (k *ConsumerClient) Connect(opts ...kgo.Opt) error {
	var err error
	k.client, err = kgo.NewClient(opts...)
	return err
}

// Close leaves the group (if any) and closes the client
func (k *ConsumerClient) Close() error {
	if k.client != nil {
		k.client.Close()
		k.client = nil
	}
	return nil
}

// AddTopics starts consuming the given topics in addition to the current ones
func (k *ConsumerClient) AddTopics(topics ...string) {
	if k.client == nil || len(topics) == 0 {
		return
	}
	k.client.AddConsumeTopics(topics...)
}

// RemoveTopics stops consuming the given topics and drops their buffered records
func (k *ConsumerClient) RemoveTopics(topics ...string) {
	if k.client == nil || len(topics) == 0 {
		return
	}
	k.client.PurgeTopicsFromConsuming(topics...)
}

func (k *ConsumerClient) PollFetches(ctx context.Context) Fetches {
	if k.client == nil {
		return NewKafkaFetchesAdapter(kgo.NewErrFetch(ErrNotConnected))
	}
	return NewKafkaFetchesAdapter(k.client.PollFetches(ctx))
}

func (k *ConsumerClient) CommitRecords(ctx context.Context) error {
	if k.client == nil {
		return ErrNotConnected
	}
	return k.client.CommitUncommittedOffsets(ctx)
}
