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

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/config"
)

const producerJSON = `{
	"Type": "ProducerClient",
	"HazdevBrokerConfig": {
		"Type": "ProducerConfig",
		"Properties": {
			"client.id": "example-producer",
			"bootstrap.servers": "localhost:9092",
			"linger.ms": 5
		}
	},
	"Topic": "test",
	"FileExtension": "txt",
	"InputDirectory": "./input",
	"ArchiveDirectory": "./archive",
	"TimePerFile": 2,
	"HeartbeatInterval": 30
}`

const consumerYAML = `
HazdevBrokerConfig:
  Type: ConsumerConfig
  Properties:
    bootstrap.servers: localhost:9092
    group.id: consumers
TopicList:
  - test
  - alarms
FileExtension: txt
OutputDirectory: ./output
MessagesPerFile: 5
TimePerFile: 60
HeartbeatDirectory: ./heartbeats
`

var _ = Describe("ClientConfig", func() {
	It("parses the original JSON configuration files", func() {
		cfg, err := config.Parse([]byte(producerJSON))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Validate(config.ProducerClientType)).To(Succeed())

		Expect(cfg.Broker().Type).To(Equal(broker.ProducerConfigType))
		Expect(cfg.Broker().Properties).To(HaveKeyWithValue("linger.ms", "5"))
		Expect(cfg.Topic).To(Equal("test"))

		d, ok := cfg.TimePerFileDuration()
		Expect(ok).To(BeTrue())
		Expect(d).To(Equal(2 * time.Second))
		Expect(cfg.HeartbeatPolicy().Interval()).To(Equal(30 * time.Second))
	})

	It("parses YAML configuration files", func() {
		cfg, err := config.Parse([]byte(consumerYAML))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Validate(config.ConsumerClientType)).To(Succeed())
		Expect(cfg.TopicList).To(Equal([]string{"test", "alarms"}))
		Expect(cfg.MessagesPerFileOrDefault()).To(Equal(5))
		Expect(cfg.HeartbeatDirectory).To(Equal("./heartbeats"))
	})

	It("applies defaults", func() {
		var cfg config.ClientConfig
		Expect(cfg.MessagesPerFileOrDefault()).To(Equal(1))
		Expect(cfg.PollTimeoutDuration()).To(Equal(10 * time.Second))
		Expect(cfg.HeartbeatPolicy().IsDisabled()).To(BeTrue())
		_, ok := cfg.TimePerFileDuration()
		Expect(ok).To(BeFalse())
	})

	It("maps a negative heartbeat interval to every message", func() {
		interval := int64(-1)
		cfg := config.ClientConfig{HeartbeatInterval: &interval}
		Expect(cfg.HeartbeatPolicy().IsAlways()).To(BeTrue())
	})

	It("rejects a configuration for another client", func() {
		cfg, err := config.Parse([]byte(producerJSON))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Validate(config.ArchiveClientType)).To(MatchError(config.ErrWrongClientType))
	})

	It("lists every missing field", func() {
		err := config.ClientConfig{}.Validate(config.ProducerClientType)
		Expect(err).To(MatchError(config.ErrMissingField))
		for _, field := range []string{"FileExtension", "InputDirectory", "HazdevBrokerConfig", "Topic"} {
			Expect(err.Error()).To(ContainSubstring(field))
		}
	})

	It("rejects unknown client types", func() {
		Expect(config.ClientConfig{}.Validate("Replayer")).To(MatchError(config.ErrUnknownClientType))
	})

	It("rejects nonsensical numbers", func() {
		cfg, err := config.Parse([]byte(consumerYAML))
		Expect(err).NotTo(HaveOccurred())
		zero := int64(0)
		cfg.MessagesPerFile = &zero
		Expect(cfg.Validate(config.ConsumerClientType)).To(MatchError(config.ErrInvalidField))
	})

	It("rejects a zero poll timeout", func() {
		cfg, err := config.Parse([]byte(consumerYAML))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Validate(config.ArchiveClientType)).To(Succeed())

		zero := int64(0)
		cfg.PollTimeout = &zero
		Expect(cfg.Validate(config.ArchiveClientType)).To(MatchError(ContainSubstring("PollTimeout")))
		Expect(cfg.Validate(config.ArchiveClientType)).To(MatchError(config.ErrInvalidField))
	})
})

var _ = Describe("FileConfigManager", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("loads and validates a file", func() {
		path := filepath.Join(dir, "consumer.yaml")
		Expect(os.WriteFile(path, []byte(consumerYAML), 0o644)).To(Succeed())

		cfg, err := config.NewFileConfigManager(path).GetConfig(context.Background(), config.ConsumerClientType)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.OutputDirectory).To(Equal("./output"))
	})

	It("reports a missing file", func() {
		_, err := config.NewFileConfigManager(filepath.Join(dir, "nope.json")).
			GetConfig(context.Background(), config.ConsumerClientType)
		Expect(err).To(MatchError(ContainSubstring("does not exist")))
	})

	It("reports malformed files", func() {
		path := filepath.Join(dir, "broken.json")
		Expect(os.WriteFile(path, []byte("{ not: [valid"), 0o644)).To(Succeed())

		_, err := config.NewFileConfigManager(path).GetConfig(context.Background(), config.ConsumerClientType)
		Expect(err).To(MatchError(ContainSubstring("failed to parse")))
	})

	It("reports validation failures with the path", func() {
		path := filepath.Join(dir, "producer.json")
		Expect(os.WriteFile(path, []byte(`{"Type":"ProducerClient"}`), 0o644)).To(Succeed())

		_, err := config.NewFileConfigManager(path).GetConfig(context.Background(), config.ProducerClientType)
		Expect(err).To(MatchError(config.ErrMissingField))
		Expect(err.Error()).To(ContainSubstring(path))
	})
})
