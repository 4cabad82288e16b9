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
	"errors"
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

// ProducerClient publishes every line of files found in the input directory
// and sends an idle heartbeat when there is nothing to publish.
type ProducerClient struct {
	cfg     config.ClientConfig
	sender  MessageSender
	fs      filesystem.Service
	backoff *backoff.Manager
	log     *zap.SugaredLogger
}

// NewProducerClient validates cfg and creates the client
func NewProducerClient(cfg config.ClientConfig, sender MessageSender, log *zap.SugaredLogger) (*ProducerClient, error) {
	if err := cfg.Validate(config.ProducerClientType); err != nil {
		return nil, err
	}

	log = logger.OrFor(log, logger.ComponentProducerClient)
	return &ProducerClient{
		cfg:     cfg,
		sender:  sender,
		fs:      filesystem.NewDefaultService(),
		backoff: backoff.NewManager(backoff.DefaultConfig(logger.ComponentProducerClient, log)),
		log:     log,
	}, nil
}

// WithFileSystemService allows setting a custom filesystem service
func (c *ProducerClient) WithFileSystemService(fs filesystem.Service) *ProducerClient {
	c.fs = fs
	return c
}

// Run publishes files until ctx ends
func (c *ProducerClient) Run(ctx context.Context) error {
	if c.cfg.ArchiveDirectory != "" {
		if err := c.fs.EnsureDirectory(ctx, c.cfg.ArchiveDirectory); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	pause := config.DefaultProducerTimePerFile
	if d, ok := c.cfg.TimePerFileDuration(); ok {
		pause = d
	}

	c.log.Infof("Publishing *%s files from %s to topic %s", c.cfg.FileExtension, c.cfg.InputDirectory, c.cfg.Topic)
	return runLoop(ctx, c.backoff, c.RunOnce, func() time.Duration { return pause })
}

// RunOnce publishes at most one file. Without a file it sends a heartbeat.
func (c *ProducerClient) RunOnce(ctx context.Context) error {
	path, found, err := c.nextFile(ctx)
	if err != nil {
		return err
	}

	if !found {
		c.log.Debugf("Sending idle heartbeat to %s", c.cfg.Topic)
		if err := c.sender.SendHeartbeat(ctx, c.cfg.Topic); err != nil {
			c.log.Warnf("Failed to send idle heartbeat: %v", err)
		}
		return nil
	}

	return c.publishFile(ctx, path)
}

// nextFile returns the first file in the input directory with the
// configured extension, in name order
func (c *ProducerClient) nextFile(ctx context.Context) (string, bool, error) {
	entries, err := c.fs.ReadDir(ctx, c.cfg.InputDirectory)
	if err != nil {
		return "", false, fmt.Errorf("failed to list input directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), c.cfg.FileExtension) {
			continue
		}
		return filepath.Join(c.cfg.InputDirectory, entry.Name()), true, nil
	}
	return "", false, nil
}

// publishFile sends every line of path and then archives or removes it. The
// file stays in place when a send fails so it is retried in the next cycle.
func (c *ProducerClient) publishFile(ctx context.Context, path string) error {
	data, err := c.fs.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := splitLines(string(data))
	c.log.Debugf("Found %s with %d messages", path, len(lines))

	for i, line := range lines {
		if err := c.sender.SendString(ctx, c.cfg.Topic, line); err != nil {
			return fmt.Errorf("failed to send message %d of %s: %w", i+1, path, err)
		}
	}
	messagesProcessed.WithLabelValues(config.ProducerClientType).Add(float64(len(lines)))
	filesProcessed.WithLabelValues(config.ProducerClientType).Inc()

	if c.cfg.ArchiveDirectory == "" {
		if err := c.fs.Remove(ctx, path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}

	target := filepath.Join(c.cfg.ArchiveDirectory, filepath.Base(path))
	if err := c.fs.Rename(ctx, path, target); err != nil {
		// the file must not be picked up again
		c.log.Warnf("Failed to archive %s, removing it: %v", path, err)
		if rmErr := c.fs.Remove(ctx, path); rmErr != nil {
			return fmt.Errorf("failed to archive %s: %w", path, errors.Join(err, rmErr))
		}
	}
	return nil
}

// splitLines splits text into lines without their terminators
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
