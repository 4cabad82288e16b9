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

package clients_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/broker"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/clients"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/config"
)

var _ = Describe("ProducerClient", func() {
	var (
		ctx     context.Context
		input   string
		archive string
		sender  *fakeSender
		cfg     config.ClientConfig
	)

	BeforeEach(func() {
		ctx = context.Background()
		input = GinkgoT().TempDir()
		archive = filepath.Join(GinkgoT().TempDir(), "archive")
		sender = &fakeSender{}
		brokerCfg := broker.NewBrokerConfig(broker.ProducerConfigType, "localhost:9092", nil)
		cfg = config.ClientConfig{
			Type:               config.ProducerClientType,
			HazdevBrokerConfig: &brokerCfg,
			Topic:              "events",
			FileExtension:      ".txt",
			InputDirectory:     input,
			ArchiveDirectory:   archive,
		}
		Expect(os.MkdirAll(archive, 0o755)).To(Succeed())
	})

	writeInput := func(name, content string) {
		Expect(os.WriteFile(filepath.Join(input, name), []byte(content), 0o644)).To(Succeed())
	}

	It("sends every line of one file and archives it", func() {
		writeInput("a.txt", "first\nsecond\r\nthird\n")
		writeInput("b.txt", "later\n")
		writeInput("ignored.json", "{}\n")

		client, err := clients.NewProducerClient(cfg, sender, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.RunOnce(ctx)).To(Succeed())

		Expect(sender.Messages()).To(Equal([]string{"events:first", "events:second", "events:third"}))
		Expect(filepath.Join(archive, "a.txt")).To(BeAnExistingFile())
		Expect(filepath.Join(input, "a.txt")).NotTo(BeAnExistingFile())
		Expect(filepath.Join(input, "b.txt")).To(BeAnExistingFile())
		Expect(filepath.Join(input, "ignored.json")).To(BeAnExistingFile())
		Expect(sender.Heartbeats()).To(BeEmpty())
	})

	It("deletes files when not archiving", func() {
		cfg.ArchiveDirectory = ""
		writeInput("a.txt", "only\n")

		client, err := clients.NewProducerClient(cfg, sender, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.RunOnce(ctx)).To(Succeed())

		Expect(sender.Messages()).To(Equal([]string{"events:only"}))
		entries, err := os.ReadDir(input)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("sends an idle heartbeat when there is nothing to publish", func() {
		client, err := clients.NewProducerClient(cfg, sender, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.RunOnce(ctx)).To(Succeed())

		Expect(sender.Messages()).To(BeEmpty())
		Expect(sender.Heartbeats()).To(Equal([]string{"events"}))
	})

	It("keeps the file when sending fails", func() {
		sender.sendErr = errors.New("broker down")
		writeInput("a.txt", "first\n")

		client, err := clients.NewProducerClient(cfg, sender, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.RunOnce(ctx)).To(MatchError(ContainSubstring("broker down")))
		Expect(filepath.Join(input, "a.txt")).To(BeAnExistingFile())
	})

	It("rejects an incomplete configuration", func() {
		cfg.Topic = ""
		_, err := clients.NewProducerClient(cfg, sender, nil)
		Expect(err).To(MatchError(config.ErrMissingField))
	})

	It("publishes files dropped in while running", func() {
		seconds := int64(0)
		cfg.TimePerFile = &seconds
		client, err := clients.NewProducerClient(cfg, sender, nil)
		Expect(err).NotTo(HaveOccurred())

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- client.Run(runCtx) }()

		writeInput("late.txt", "hello\n")
		Eventually(sender.Messages).WithTimeout(5 * time.Second).Should(ContainElement("events:hello"))

		cancel()
		Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
	})
})
