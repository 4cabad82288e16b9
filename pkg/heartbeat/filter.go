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
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
)

// Verdict is what the filter decided about a single payload
type Verdict int

const (
	// VerdictForward means the payload is application data and goes to the caller
	VerdictForward Verdict = iota
	// VerdictAccepted means a valid heartbeat for a subscribed topic
	VerdictAccepted
	// VerdictForeignTopic means a valid heartbeat for a topic we did not subscribe to
	VerdictForeignTopic
	// VerdictInvalid means heartbeat shaped but invalid
	VerdictInvalid
)

func (v Verdict) String() string {
	switch v {
	case VerdictForward:
		return "forward"
	case VerdictAccepted:
		return "accepted"
	case VerdictForeignTopic:
		return "foreign_topic"
	case VerdictInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Suppressed is true for every verdict that keeps the payload from the caller
func (v Verdict) Suppressed() bool {
	return v != VerdictForward
}

// StatusRecorder persists accepted heartbeats. *StatusWriter implements it.
type StatusRecorder interface {
	Write(ctx context.Context, msg Message)
}

// Filter strips heartbeats out of a consumer's stream and tracks when the
// last one for a subscribed topic arrived. It is not safe for concurrent use.
type Filter struct {
	subscribedTopics  map[string]struct{}
	lastHeartbeatTime time.Time
	recorder          StatusRecorder
	now               func() time.Time
	log               *zap.SugaredLogger
}

// NewFilter creates a filter. recorder may be nil to skip status persistence.
func NewFilter(recorder StatusRecorder, log *zap.SugaredLogger) *Filter {
	return &Filter{
		subscribedTopics: make(map[string]struct{}),
		recorder:         recorder,
		now:              time.Now,
		log:              logger.OrFor(log, logger.ComponentHeartbeatFilter),
	}
}

// WithClock replaces the receive time source, mainly for tests
func (f *Filter) WithClock(now func() time.Time) *Filter {
	f.now = now
	return f
}

// Subscribe replaces the subscribed topic set
func (f *Filter) Subscribe(topics ...string) {
	f.subscribedTopics = make(map[string]struct{}, len(topics))
	for _, t := range topics {
		f.subscribedTopics[t] = struct{}{}
	}
}

// Topics returns the subscribed topics in no particular order
func (f *Filter) Topics() []string {
	topics := make([]string, 0, len(f.subscribedTopics))
	for t := range f.subscribedTopics {
		topics = append(topics, t)
	}
	return topics
}

// IsSubscribed reports whether topic is in the subscribed set
func (f *Filter) IsSubscribed(topic string) bool {
	_, ok := f.subscribedTopics[topic]
	return ok
}

// Inspect decides whether payload is application data. Accepted heartbeats
// update the liveness timestamp with the receive time and are handed to the
// status recorder before Inspect returns.
func (f *Filter) Inspect(ctx context.Context, payload []byte) Verdict {
	res := Decode(payload)
	if !res.Outcome.IsHeartbeatShaped() {
		return VerdictForward
	}

	verdict := f.classify(res)
	HeartbeatsReceived.WithLabelValues(verdict.String()).Inc()

	switch verdict {
	case VerdictInvalid:
		f.log.Debugf("Dropping invalid heartbeat %s: %v", res.Message, res.Message.Validate())
	case VerdictForeignTopic:
		f.log.Debugf("Ignoring heartbeat for unsubscribed topic %q", res.Message.Topic)
	case VerdictAccepted:
		f.lastHeartbeatTime = f.now()
		if f.recorder != nil {
			f.recorder.Write(ctx, res.Message)
		}
	}
	return verdict
}

func (f *Filter) classify(res DecodeResult) Verdict {
	if res.Outcome == OutcomeInvalidFields {
		return VerdictInvalid
	}
	if !f.IsSubscribed(res.Message.Topic) {
		return VerdictForeignTopic
	}
	return VerdictAccepted
}

// LastHeartbeatTime is the receive time of the last accepted heartbeat, or
// the zero time if none has arrived yet.
func (f *Filter) LastHeartbeatTime() time.Time {
	return f.lastHeartbeatTime
}

// IsStale reports whether no heartbeat has been accepted within threshold of
// now. A filter that never accepted a heartbeat is stale.
func (f *Filter) IsStale(threshold time.Duration, now time.Time) bool {
	if f.lastHeartbeatTime.IsZero() {
		return true
	}
	return now.Sub(f.lastHeartbeatTime) > threshold
}
