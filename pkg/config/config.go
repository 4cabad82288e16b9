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

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/heartbeat"
)

// Client application types, also used as the Type discriminator
const (
	ProducerClientType = "ProducerClient"
	ConsumerClientType = "ConsumerClient"
	ArchiveClientType  = "ArchiveClient"
)

const (
	DefaultProducerTimePerFile = 1 * time.Second
	DefaultMessagesPerFile     = 1
	DefaultArchivePollTimeout  = 10 * time.Second
)

var (
	ErrUnknownClientType = errors.New("unknown client type")
	ErrWrongClientType   = errors.New("configuration is for a different client type")
	ErrMissingField      = errors.New("missing required configuration field")
	ErrInvalidField      = errors.New("invalid configuration field")
)

// ClientConfig is the configuration file of one client application. Which
// fields are required depends on the client type.
type ClientConfig struct {
	Type     string `yaml:"Type,omitempty"`
	LogLevel string `yaml:"LogLevel,omitempty"`

	HazdevBrokerConfig *broker.BrokerConfig `yaml:"HazdevBrokerConfig,omitempty"`

	Topic     string   `yaml:"Topic,omitempty"`
	TopicList []string `yaml:"TopicList,omitempty"`

	FileExtension    string `yaml:"FileExtension,omitempty"`
	FileName         string `yaml:"FileName,omitempty"`
	InputDirectory   string `yaml:"InputDirectory,omitempty"`
	ArchiveDirectory string `yaml:"ArchiveDirectory,omitempty"`
	OutputDirectory  string `yaml:"OutputDirectory,omitempty"`

	// Seconds between files for the producer, or the forced flush age for the consumer
	TimePerFile     *int64 `yaml:"TimePerFile,omitempty"`
	MessagesPerFile *int64 `yaml:"MessagesPerFile,omitempty"`
	// Seconds the archive client waits per poll
	PollTimeout *int64 `yaml:"PollTimeout,omitempty"`
	// Seconds between producer heartbeats; negative sends one with every message, zero disables them
	HeartbeatInterval *int64 `yaml:"HeartbeatInterval,omitempty"`

	HeartbeatDirectory string `yaml:"HeartbeatDirectory,omitempty"`
}

// Validate checks the fields required by clientType. An empty Type in the
// file is accepted, a different one is not.
func (c ClientConfig) Validate(clientType string) error {
	if c.Type != "" && c.Type != clientType {
		return fmt.Errorf("%w: expected %q, got %q", ErrWrongClientType, clientType, c.Type)
	}

	var required map[string]bool
	switch clientType {
	case ProducerClientType:
		required = map[string]bool{
			"FileExtension":      c.FileExtension != "",
			"InputDirectory":     c.InputDirectory != "",
			"HazdevBrokerConfig": c.HazdevBrokerConfig != nil,
			"Topic":              c.Topic != "",
		}
	case ConsumerClientType, ArchiveClientType:
		required = map[string]bool{
			"FileExtension":      c.FileExtension != "",
			"OutputDirectory":    c.OutputDirectory != "",
			"HazdevBrokerConfig": c.HazdevBrokerConfig != nil,
			"TopicList":          len(c.TopicList) > 0,
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownClientType, clientType)
	}

	var errs []error
	for _, field := range []string{"FileExtension", "InputDirectory", "OutputDirectory", "HazdevBrokerConfig", "Topic", "TopicList"} {
		if present, ok := required[field]; ok && !present {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingField, field))
		}
	}

	if c.MessagesPerFile != nil && *c.MessagesPerFile < 1 {
		errs = append(errs, fmt.Errorf("%w: MessagesPerFile must be at least 1", ErrInvalidField))
	}
	if c.TimePerFile != nil && *c.TimePerFile < 0 {
		errs = append(errs, fmt.Errorf("%w: TimePerFile must not be negative", ErrInvalidField))
	}
	if c.PollTimeout != nil && *c.PollTimeout < 1 {
		errs = append(errs, fmt.Errorf("%w: PollTimeout must be at least 1 second", ErrInvalidField))
	}
	for _, t := range c.TopicList {
		if t == "" {
			errs = append(errs, fmt.Errorf("%w: TopicList contains an empty topic", ErrInvalidField))
			break
		}
	}

	return errors.Join(errs...)
}

// Broker returns the broker block, or the zero value when absent
func (c ClientConfig) Broker() broker.BrokerConfig {
	if c.HazdevBrokerConfig == nil {
		return broker.BrokerConfig{}
	}
	return *c.HazdevBrokerConfig
}

// HeartbeatPolicy maps HeartbeatInterval; an unset interval disables heartbeats
func (c ClientConfig) HeartbeatPolicy() heartbeat.IntervalPolicy {
	if c.HeartbeatInterval == nil {
		return heartbeat.Disabled()
	}
	return heartbeat.PolicyFromSeconds(*c.HeartbeatInterval)
}

// TimePerFileDuration returns TimePerFile and whether it was set
func (c ClientConfig) TimePerFileDuration() (time.Duration, bool) {
	if c.TimePerFile == nil {
		return 0, false
	}
	return seconds(*c.TimePerFile), true
}

// MessagesPerFileOrDefault returns MessagesPerFile, defaulting to one
func (c ClientConfig) MessagesPerFileOrDefault() int {
	if c.MessagesPerFile == nil || *c.MessagesPerFile < 1 {
		return DefaultMessagesPerFile
	}
	return int(*c.MessagesPerFile)
}

// PollTimeoutDuration returns PollTimeout, defaulting to ten seconds
func (c ClientConfig) PollTimeoutDuration() time.Duration {
	if c.PollTimeout == nil {
		return DefaultArchivePollTimeout
	}
	return seconds(*c.PollTimeout)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
