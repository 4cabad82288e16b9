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
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/backoff"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/config"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/service/filesystem"
)

const archiveDateLayout = "2006-01-02"

// ArchiveClient appends every received message to a file per UTC day
type ArchiveClient struct {
	cfg     config.ClientConfig
	poller  MessagePoller
	fs      filesystem.Service
	backoff *backoff.Manager
	now     func() time.Time
	log     *zap.SugaredLogger

	file     io.WriteCloser
	fileDate string
	filePath string
}

// NewArchiveClient validates cfg and creates the client
func NewArchiveClient(cfg config.ClientConfig, poller MessagePoller, log *zap.SugaredLogger) (*ArchiveClient, error) {
	if err := cfg.Validate(config.ArchiveClientType); err != nil {
		return nil, err
	}

	log = logger.OrFor(log, logger.ComponentArchiveClient)
	return &ArchiveClient{
		cfg:     cfg,
		poller:  poller,
		fs:      filesystem.NewDefaultService(),
		backoff: backoff.NewManager(backoff.DefaultConfig(logger.ComponentArchiveClient, log)),
		now:     time.Now,
		log:     log,
	}, nil
}

// WithFileSystemService allows setting a custom filesystem service
func (c *ArchiveClient) WithFileSystemService(fs filesystem.Service) *ArchiveClient {
	c.fs = fs
	return c
}

// WithClock replaces the time source used to pick the daily file
func (c *ArchiveClient) WithClock(now func() time.Time) *ArchiveClient {
	c.now = now
	return c
}

// Run archives until ctx ends
func (c *ArchiveClient) Run(ctx context.Context) error {
	if err := c.fs.EnsureDirectory(ctx, c.cfg.OutputDirectory); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	defer c.Close()

	c.log.Infof("Archiving %v to %s", c.cfg.TopicList, c.cfg.OutputDirectory)
	return runLoop(ctx, c.backoff, c.RunOnce, func() time.Duration { return 0 })
}

// RunOnce polls once and appends whatever arrived
func (c *ArchiveClient) RunOnce(ctx context.Context) error {
	messages, err := c.poller.PollString(ctx, c.cfg.PollTimeoutDuration())
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	if err := c.ensureFile(ctx); err != nil {
		return err
	}

	written := 0
	for _, msg := range messages {
		if msg == "" {
			continue
		}
		if _, err := io.WriteString(c.file, terminate(msg)); err != nil {
			c.closeFile()
			return fmt.Errorf("failed to append to %s: %w", c.filePath, err)
		}
		written++
	}

	messagesProcessed.WithLabelValues(config.ArchiveClientType).Add(float64(written))
	c.log.Debugf("Updated archive file %s with %d additional message(s)", c.filePath, written)
	return nil
}

// CurrentFile is the path of the archive file in use, empty before the first write
func (c *ArchiveClient) CurrentFile() string {
	return c.filePath
}

// ensureFile opens the file for the current UTC day, closing the previous day's one
func (c *ArchiveClient) ensureFile(ctx context.Context) error {
	date := c.now().UTC().Format(archiveDateLayout)
	if c.file != nil && date == c.fileDate {
		return nil
	}
	if c.file != nil {
		c.log.Infof("Day changed, closing archive file %s", c.filePath)
		c.closeFile()
	}

	name := date
	if c.cfg.FileName != "" {
		name += "_" + c.cfg.FileName
	}
	path := filepath.Join(c.cfg.OutputDirectory, name+"."+c.cfg.FileExtension)

	f, err := c.fs.OpenAppend(ctx, path, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open archive file %s: %w", path, err)
	}

	c.file, c.fileDate, c.filePath = f, date, path
	filesProcessed.WithLabelValues(config.ArchiveClientType).Inc()
	c.log.Infof("Switched to archive file %s", path)
	return nil
}

func (c *ArchiveClient) closeFile() {
	if c.file == nil {
		return
	}
	if err := c.file.Close(); err != nil {
		c.log.Warnf("Failed to close archive file %s: %v", c.filePath, err)
	}
	c.file = nil
	c.fileDate = ""
}

// Close closes the current archive file
func (c *ArchiveClient) Close() error {
	c.closeFile()
	return nil
}
