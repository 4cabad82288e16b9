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

package heartbeat

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
	"github.com/united-manufacturing-hub/hazdev-broker/pkg/service/filesystem"
)

const (
	// StatusFileExtension is appended to every status file name
	StatusFileExtension = ".heartbeat"

	// DefaultRetryDelay is how long a failed status write waits before its single retry
	DefaultRetryDelay = 100 * time.Millisecond

	statusFilePerm = 0o644
)

// StatusWriter keeps one file per (topic, client id) holding the latest
// accepted heartbeat.
type StatusWriter struct {
	dir        string
	fs         filesystem.Service
	retryDelay time.Duration
	log        *zap.SugaredLogger
}

// NewStatusWriter creates a writer for dir. An empty dir disables writing.
func NewStatusWriter(dir string, log *zap.SugaredLogger) *StatusWriter {
	return &StatusWriter{
		dir:        dir,
		fs:         filesystem.NewDefaultService(),
		retryDelay: DefaultRetryDelay,
		log:        logger.OrFor(log, logger.ComponentStatusWriter),
	}
}

// WithFileSystemService swaps the filesystem implementation
func (w *StatusWriter) WithFileSystemService(fs filesystem.Service) *StatusWriter {
	w.fs = fs
	return w
}

// WithRetryDelay overrides the pause before the retry
func (w *StatusWriter) WithRetryDelay(d time.Duration) *StatusWriter {
	w.retryDelay = d
	return w
}

// Enabled is false when no directory was configured
func (w *StatusWriter) Enabled() bool {
	return w.dir != ""
}

// Dir returns the configured directory
func (w *StatusWriter) Dir() string {
	return w.dir
}

// Path returns the status file location for msg. Path separators in the
// topic and client id are percent escaped, so distinct names never map to
// the same file through escaping. The "_" joining topic and client id is
// not escaped: topic "a" with client "b_c" shares a file with topic "a_b"
// and client "c".
func (w *StatusWriter) Path(msg Message) string {
	name := sanitizeFileComponent(msg.Topic) + "_" + sanitizeFileComponent(msg.ClientID) + StatusFileExtension
	return filepath.Join(w.dir, name)
}

// Write overwrites the status file for msg with its encoded form. A failed
// write is retried once after the retry delay, then dropped. Write never
// reports errors to the caller.
func (w *StatusWriter) Write(ctx context.Context, msg Message) {
	if !w.Enabled() || !msg.IsValid() {
		return
	}

	data, err := Encode(msg)
	if err != nil {
		w.drop(msg, err)
		return
	}

	path := w.Path(msg)
	err = w.fs.WriteFile(ctx, path, data, statusFilePerm)
	if err == nil {
		return
	}
	w.log.Debugf("Failed to write heartbeat status %s, retrying in %s: %v", path, w.retryDelay, err)

	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		w.drop(msg, ctx.Err())
		return
	case <-timer.C:
	}

	if err := w.fs.WriteFile(ctx, path, data, statusFilePerm); err != nil {
		w.drop(msg, err)
	}
}

func (w *StatusWriter) drop(msg Message, err error) {
	StatusWriteFailures.Inc()
	w.log.Debugf("Dropping heartbeat status for topic %q client %q: %v", msg.Topic, msg.ClientID, err)
}

var fileComponentEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "\\", "%5C")

// sanitizeFileComponent keeps topic and client id from escaping the status directory
func sanitizeFileComponent(s string) string {
	return fileComponentEscaper.Replace(s)
}
