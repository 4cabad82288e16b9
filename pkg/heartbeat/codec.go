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
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// Outcome classifies a decoded payload
type Outcome int

const (
	// OutcomeNotText means the payload is not valid UTF-8
	OutcomeNotText Outcome = iota
	// OutcomeNotJSON means the payload is text but not a JSON object
	OutcomeNotJSON
	// OutcomeWrongDiscriminator means a JSON object without Type "Heartbeat"
	OutcomeWrongDiscriminator
	// OutcomeInvalidFields means heartbeat shaped but failing validation
	OutcomeInvalidFields
	// OutcomeValid means a complete heartbeat
	OutcomeValid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotText:
		return "not_text"
	case OutcomeNotJSON:
		return "not_json"
	case OutcomeWrongDiscriminator:
		return "wrong_discriminator"
	case OutcomeInvalidFields:
		return "invalid_fields"
	case OutcomeValid:
		return "valid"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// IsHeartbeatShaped is true when the payload carried the heartbeat
// discriminator, whether or not its fields were valid.
func (o Outcome) IsHeartbeatShaped() bool {
	return o == OutcomeValid || o == OutcomeInvalidFields
}

// DecodeResult is the outcome of Decode. Message is only populated for
// heartbeat shaped outcomes.
type DecodeResult struct {
	Outcome Outcome
	Message Message
}

// wireMessage is the sparse JSON form; absent fields are omitted, never null
type wireMessage struct {
	Type     string `json:"Type"`
	Time     string `json:"Time,omitempty"`
	Topic    string `json:"Topic,omitempty"`
	ClientID string `json:"ClientId,omitempty"`
}

// Encode serializes msg. It does not validate; fields that are empty are
// left out of the object.
func Encode(msg Message) ([]byte, error) {
	out, err := json.Marshal(wireMessage{
		Type:     HeartbeatType,
		Time:     FormatTime(msg.Time),
		Topic:    msg.Topic,
		ClientID: msg.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode heartbeat: %w", err)
	}
	return out, nil
}

// Decode classifies payload and, when it is heartbeat shaped, extracts the
// message. It never fails; every payload maps to exactly one Outcome.
func Decode(payload []byte) DecodeResult {
	if !utf8.Valid(payload) {
		return DecodeResult{Outcome: OutcomeNotText}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return DecodeResult{Outcome: OutcomeNotJSON}
	}

	msgType, ok := stringField(fields, TypeKey)
	if !ok || msgType != HeartbeatType {
		return DecodeResult{Outcome: OutcomeWrongDiscriminator}
	}

	var msg Message
	if s, ok := stringField(fields, TimeKey); ok {
		msg.Time = ParseTime(s)
	}
	msg.Topic, _ = stringField(fields, TopicKey)
	msg.ClientID, _ = stringField(fields, ClientIDKey)

	if !msg.IsValid() {
		return DecodeResult{Outcome: OutcomeInvalidFields, Message: msg}
	}
	return DecodeResult{Outcome: OutcomeValid, Message: msg}
}

// stringField returns fields[key] if it holds a JSON string
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
