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

// Package broker provides the heartbeat aware producer and consumer that
// sit between client applications and the Kafka transport.
package broker

import (
	"errors"
	"fmt"
	"maps"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/kafka"
)

const (
	ProducerConfigType = "ProducerConfig"
	ConsumerConfigType = "ConsumerConfig"
)

var (
	ErrWrongConfigType   = errors.New("wrong broker configuration type")
	ErrMissingProperties = errors.New("broker configuration has no properties")
	ErrNoBrokers         = errors.New("no brokers configured, set bootstrap.servers")
	ErrEmptyTopic        = errors.New("topic must not be empty")
	ErrNoTopics          = errors.New("at least one topic is required")
)

// BrokerConfig is the transport part of a client configuration. Properties
// are passed to the Kafka client after translation.
type BrokerConfig struct {
	Type       string            `yaml:"Type" json:"Type"`
	Properties map[string]string `yaml:"Properties" json:"Properties"`
}

// NewBrokerConfig builds a config of the given type pointing at brokers
func NewBrokerConfig(configType, brokers string, props map[string]string) BrokerConfig {
	cfg := BrokerConfig{Type: configType, Properties: make(map[string]string, len(props)+1)}
	maps.Copy(cfg.Properties, props)
	if brokers != "" {
		cfg.Properties[kafka.PropBootstrapServers] = brokers
	}
	return cfg
}

// Validate checks that the config is of the expected type and carries properties
func (c BrokerConfig) Validate(expectedType string) error {
	if c.Type != expectedType {
		return fmt.Errorf("%w: expected %q, got %q", ErrWrongConfigType, expectedType, c.Type)
	}
	if len(c.Properties) == 0 {
		return ErrMissingProperties
	}
	return nil
}

// Property returns a single property, or the empty string
func (c BrokerConfig) Property(key string) string {
	return c.Properties[key]
}

// withProperty returns a copy of c with key set to value
func (c BrokerConfig) withProperty(key, value string) BrokerConfig {
	props := maps.Clone(c.Properties)
	if props == nil {
		props = make(map[string]string, 1)
	}
	props[key] = value
	c.Properties = props
	return c
}
