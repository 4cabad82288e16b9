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

package clients

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/backoff"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/config"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/service/filesystem"
)

// ConsumerPollTimeout is how long each consumer client poll waits
const ConsumerPollTimeout = 500 * time.Millisecond

// ConsumerClient queues received messages and writes them out in batches
// of MessagesPerFile, or whatever is pending once TimePerFile has passed.
type ConsumerClient struct {
	cfg       config.ClientConfig
	poller    MessagePoller
	fs        filesystem.Service
	backoff   *backoff.Manager
	now       func() time.Time
	log       *zap.SugaredLogger
	queue     []string
	lastWrite time.Time
	lastStamp int64
}

// NewConsumerClient validates cfg and creates the client
func NewConsumerClient(cfg config.ClientConfig, poller MessagePoller, log *zap.SugaredLogger) (*ConsumerClient, error) {
	if err := cfg.Validate(config.ConsumerClientType); err != nil {
		return nil, err
	}

	log = logger.OrFor(log, logger.ComponentConsumerClient)
	return &ConsumerClient{
		cfg:       cfg,
		poller:    poller,
		fs:        filesystem.NewDefaultService(),
		backoff:   backoff.NewManager(backoff.DefaultConfig(logger.ComponentConsumerClient, log)),
		now:       time.Now,
		log:       log,
		lastWrite: time.Now(),
	}, nil
}

// WithFileSystemService allows setting a custom filesystem service
func (c *ConsumerClient) WithFileSystemService(fs filesystem.Service) *ConsumerClient {
	c.fs = fs
	return c
}

// WithClock replaces the time source and restarts the flush timer from it
func (c *ConsumerClient) WithClock(now func() time.Time) *ConsumerClient {
	c.now = now
	c.lastWrite = now()
	return c
}

// Pending is the number of queued messages not yet written
func (c *ConsumerClient) Pending() int {
	return len(c.queue)
}

// Run polls and writes until ctx ends, then flushes what is still queued
func (c *ConsumerClient) Run(ctx context.Context) error {
	if err := c.fs.EnsureDirectory(ctx, c.cfg.OutputDirectory); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	c.log.Infof("Writing messages from %v to %s", c.cfg.TopicList, c.cfg.OutputDirectory)
	err := runLoop(ctx, c.backoff, c.RunOnce, func() time.Duration { return 0 })

	if len(c.queue) > 0 {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := c.write(flushCtx, len(c.queue)); ferr != nil {
			c.log.Errorf("Failed to flush %d pending messages on shutdown: %v", len(c.queue), ferr)
		}
	}
	return err
}

// RunOnce polls once and writes as many files as are due
func (c *ConsumerClient) RunOnce(ctx context.Context) error {
	messages, err := c.poller.PollString(ctx, ConsumerPollTimeout)
	if err != nil {
		return err
	}
	c.queue = append(c.queue, messages...)

	if len(c.queue) == 0 {
		return nil
	}

	perFile := c.cfg.MessagesPerFileOrDefault()
	if len(c.queue) >= perFile {
		for len(c.queue) >= perFile {
			c.log.Infof("Writing output file due to number of messages, %d pending", len(c.queue))
			if err := c.write(ctx, perFile); err != nil {
				return err
			}
		}
		return nil
	}

	if maxAge, ok := c.cfg.TimePerFileDuration(); ok {
		if elapsed := c.now().Sub(c.lastWrite); elapsed > maxAge {
			c.log.Infof("Writing output file due to time, %s since last file", elapsed.Truncate(time.Second))
			return c.write(ctx, len(c.queue))
		}
	}
	return nil
}

// write stores the first n queued messages in a new file and removes them
// from the queue once the file is written
func (c *ConsumerClient) write(ctx context.Context, n int) error {
	n = min(n, len(c.queue))
	now := c.now()

	var sb strings.Builder
	for _, msg := range c.queue[:n] {
		sb.WriteString(terminate(msg))
	}

	path := c.outputPath(now)
	if err := c.fs.WriteFile(ctx, path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	c.queue = c.queue[n:]
	c.lastWrite = now
	filesProcessed.WithLabelValues(config.ConsumerClientType).Inc()
	messagesProcessed.WithLabelValues(config.ConsumerClientType).Add(float64(n))
	return nil
}

// outputPath builds <dir>/<unix millis><name>.<ext>, bumping the stamp so
// two files written in the same millisecond do not collide
func (c *ConsumerClient) outputPath(now time.Time) string {
	stamp := now.UnixMilli()
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	c.lastStamp = stamp
	return filepath.Join(c.cfg.OutputDirectory, fmt.Sprintf("%d%s.%s", stamp, c.cfg.FileName, c.cfg.FileExtension))
}
