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
	"errors"
	"fmt"
	"time"
)

// Wire keys of a heartbeat message
const (
	TypeKey     = "Type"
	TimeKey     = "Time"
	TopicKey    = "Topic"
	ClientIDKey = "ClientId"

	// HeartbeatType is the Type discriminator value that marks a heartbeat
	HeartbeatType = "Heartbeat"
)

var (
	ErrMissingTime     = errors.New("heartbeat time is missing or invalid")
	ErrMissingTopic    = errors.New("heartbeat topic is missing")
	ErrMissingClientID = errors.New("heartbeat client id is missing")
)

// Message is a single heartbeat. A zero Time means the time was absent or
// could not be parsed.
type Message struct {
	Time     time.Time
	Topic    string
	ClientID string
}

// New creates a heartbeat for topic and clientID stamped with now,
// truncated to the millisecond precision of the wire format.
func New(now time.Time, topic, clientID string) Message {
	return Message{
		Time:     now.UTC().Truncate(time.Millisecond),
		Topic:    topic,
		ClientID: clientID,
	}
}

// Errors returns every validation failure of m, or nil when m is valid.
// It is computed from the current field values on every call.
func (m Message) Errors() []error {
	var errs []error
	if m.Time.IsZero() {
		errs = append(errs, ErrMissingTime)
	}
	if m.Topic == "" {
		errs = append(errs, ErrMissingTopic)
	}
	if m.ClientID == "" {
		errs = append(errs, ErrMissingClientID)
	}
	return errs
}

// IsValid reports whether time, topic and client id are all present
func (m Message) IsValid() bool {
	return len(m.Errors()) == 0
}

// Validate joins all validation failures into a single error
func (m Message) Validate() error {
	return errors.Join(m.Errors()...)
}

func (m Message) String() string {
	return fmt.Sprintf("heartbeat{time=%s topic=%q clientId=%q}", FormatTime(m.Time), m.Topic, m.ClientID)
}
