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

// Package clients contains the file based client applications: a producer
// that publishes files dropped into a directory, a consumer that batches
// messages into files, and an archiver that appends messages to daily files.
package clients

import (
	"context"
	"strings"
	"time"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/backoff"
)

// MessageSender is the part of broker.Producer the producer client uses
type MessageSender interface {
	SendString(ctx context.Context, topic, message string) error
	SendHeartbeat(ctx context.Context, topic string) error
}

// MessagePoller is the part of broker.Consumer the consumer clients use
type MessagePoller interface {
	PollString(ctx context.Context, timeout time.Duration) ([]string, error)
}

// Client is a long running client application
type Client interface {
	// RunOnce performs a single cycle
	RunOnce(ctx context.Context) error
	// Run cycles until ctx ends
	Run(ctx context.Context) error
}

// runLoop calls cycle until ctx ends, backing off after failures and
// pausing for the duration returned by pause after every cycle
func runLoop(ctx context.Context, bm *backoff.Manager, cycle func(context.Context) error, pause func() time.Duration) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if bm.Failure(err) {
				return bm.Err()
			}
			if err := bm.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		bm.Success()

		if d := pause(); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// terminate appends a newline unless message already ends with one
func terminate(message string) string {
	if strings.HasSuffix(message, "\n") {
		return message
	}
	return message + "\n"
}
