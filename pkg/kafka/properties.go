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

package kafka

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Well known client properties, named the way librdkafka and the Java
// client name them
const (
	PropBootstrapServers = "bootstrap.servers"
	PropBrokerList       = "metadata.broker.list"
	PropClientID         = "client.id"
	PropGroupID          = "group.id"
	PropAutoOffsetReset  = "auto.offset.reset"
	PropEnableAutoCommit = "enable.auto.commit"
	PropAcks             = "acks"
	PropRequestTimeoutMs = "request.timeout.ms"
	PropSessionTimeoutMs = "session.timeout.ms"
	PropLingerMs         = "linger.ms"
	PropFetchMaxWaitMs   = "fetch.max.wait.ms"
)

// Brokers returns the seed brokers from either bootstrap.servers or
// metadata.broker.list
func Brokers(props map[string]string) []string {
	raw := props[PropBootstrapServers]
	if raw == "" {
		raw = props[PropBrokerList]
	}

	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// OptionsFromProperties translates client properties into franz-go options.
// Properties it does not understand are returned sorted so the caller can
// log them.
func OptionsFromProperties(props map[string]string) ([]kgo.Opt, []string, error) {
	var (
		opts    []kgo.Opt
		unknown []string
	)

	if brokers := Brokers(props); len(brokers) > 0 {
		opts = append(opts, kgo.SeedBrokers(brokers...))
	}

	for key, value := range props {
		value = strings.TrimSpace(value)
		switch key {
		case PropBootstrapServers, PropBrokerList:
			// handled above
		case PropClientID:
			if value != "" {
				opts = append(opts, kgo.ClientID(value))
			}
		case PropGroupID:
			if value != "" {
				opts = append(opts, kgo.ConsumerGroup(value))
			}
		case PropAutoOffsetReset:
			opt, err := offsetReset(value)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, opt)
		case PropEnableAutoCommit:
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid %s %q: %w", key, value, err)
			}
			if !enabled {
				opts = append(opts, kgo.DisableAutoCommit())
			}
		case PropAcks:
			acks, err := requiredAcks(value)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, acks...)
		case PropRequestTimeoutMs:
			d, err := millis(key, value)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, kgo.ProduceRequestTimeout(d))
		case PropSessionTimeoutMs:
			d, err := millis(key, value)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, kgo.SessionTimeout(d))
		case PropLingerMs:
			d, err := millis(key, value)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, kgo.ProducerLinger(d))
		case PropFetchMaxWaitMs:
			d, err := millis(key, value)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, kgo.FetchMaxWait(d))
		default:
			unknown = append(unknown, key)
		}
	}

	sort.Strings(unknown)
	return opts, unknown, nil
}

func offsetReset(value string) (kgo.Opt, error) {
	switch strings.ToLower(value) {
	case "earliest", "smallest", "beginning":
		return kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()), nil
	case "latest", "largest", "end":
		return kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()), nil
	default:
		return nil, fmt.Errorf("invalid %s %q", PropAutoOffsetReset, value)
	}
}

// requiredAcks maps acks; anything below all requires idempotent writes to be off
func requiredAcks(value string) ([]kgo.Opt, error) {
	switch strings.ToLower(value) {
	case "all", "-1":
		return []kgo.Opt{kgo.RequiredAcks(kgo.AllISRAcks())}, nil
	case "1":
		return []kgo.Opt{kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite()}, nil
	case "0":
		return []kgo.Opt{kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite()}, nil
	default:
		return nil, fmt.Errorf("invalid %s %q", PropAcks, value)
	}
}

func millis(key, value string) (time.Duration, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a non-negative number of milliseconds", key, value)
	}
	return time.Duration(n) * time.Millisecond, nil
}
