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

// Package kafka wraps the franz-go client behind small interfaces so the
// broker producer and consumer can be tested without a running cluster.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrNotConnected is returned when an operation runs before Connect
var ErrNotConnected = errors.New("kafka client is not connected")

type Record struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string][]byte
}

type ConnectionHandler interface {
	Connect(...kgo.Opt) error
	Close() error
}

type Producer interface {
	ProduceSync(context.Context, []Record) error
}

type Admin interface {
	// IsTopicExists reports whether topic exists and, if so, its partition count
	IsTopicExists(context.Context, string) (bool, int, error)
	// CreateTopic creates topic with the given number of partitions
	CreateTopic(context.Context, string, int32) error
}

type MessagePublisher interface {
	ConnectionHandler
	Producer
	Admin
}

// Client is a producing wrapper around the franz-go client
type Client struct {
	client      *kgo.Client
	adminClient *kadm.Client
}

// NewClient returns an unconnected client
func NewClient() MessagePublisher {
	return &Client{}
}

// Connect creates the franz-go client with the given options
func (k *Client) Connect(opts ...kgo.Opt) error {
	var err error
	k.client, err = kgo.NewClient(opts...)
	if err != nil {
		return err
	}

	k.adminClient = kadm.NewClient(k.client)
	return nil
}

// Close closes the underlying franz-go client
func (k *Client) Close() error {
	if k.client != nil {
		// franz-go client.Close() never returns an error
		k.client.Close()
		k.client = nil
	}
	return nil
}

// ProduceSync produces records and waits until all of them are acknowledged
func (k *Client) ProduceSync(ctx context.Context, records []Record) error {
	if k.client == nil {
		return ErrNotConnected
	}

	kgoRecords := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		kgoRecords = append(kgoRecords, toKgoRecord(r))
	}

	return k.client.ProduceSync(ctx, kgoRecords...).FirstErr()
}

func toKgoRecord(r Record) *kgo.Record {
	rec := &kgo.Record{
		Topic: r.Topic,
		Key:   r.Key,
		Value: r.Value,
	}
	for key, v := range r.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: key, Value: v})
	}
	return rec
}

func (k *Client) IsTopicExists(ctx context.Context, topic string) (bool, int, error) {
	if k.adminClient == nil {
		return false, 0, ErrNotConnected
	}

	topicDetails, err := k.adminClient.ListTopics(ctx, topic)
	if err != nil {
		return false, 0, err
	}

	for _, td := range topicDetails {
		if td.Topic == topic && td.Err == nil {
			return true, len(td.Partitions.Numbers()), nil
		}
	}

	return false, 0, nil
}

func (k *Client) CreateTopic(ctx context.Context, topic string, partitions int32) error {
	if k.adminClient == nil {
		return ErrNotConnected
	}
	if partitions < 1 {
		return fmt.Errorf("invalid partition count %d for topic %q", partitions, topic)
	}
	if topic == "" {
		return errors.New("empty topic name specified for topic creation")
	}

	// heartbeats share the data topic, so it must not be compacted away
	cleanupPolicy := "delete"
	configs := map[string]*string{
		"cleanup.policy": &cleanupPolicy,
	}
	resp, err := k.adminClient.CreateTopic(ctx, partitions, -1, configs, topic)
	if err != nil {
		return err
	}
	return resp.Err
}

// EnsureTopic creates topic when it does not exist yet
func EnsureTopic(ctx context.Context, admin Admin, topic string, partitions int32) error {
	exists, _, err := admin.IsTopicExists(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to check topic %q: %w", topic, err)
	}
	if exists {
		return nil
	}
	if err := admin.CreateTopic(ctx, topic, partitions); err != nil {
		return fmt.Errorf("failed to create topic %q: %w", topic, err)
	}
	return nil
}
