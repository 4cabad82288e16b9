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
	"time"
)

type policyKind int

const (
	policyDisabled policyKind = iota
	policyAlways
	policyThreshold
)

// IntervalPolicy decides how often a producer interleaves heartbeats with
// its application sends. The zero value is Disabled.
type IntervalPolicy struct {
	kind     policyKind
	interval time.Duration
}

// Always emits a heartbeat alongside every send
func Always() IntervalPolicy {
	return IntervalPolicy{kind: policyAlways}
}

// Disabled never emits heartbeats
func Disabled() IntervalPolicy {
	return IntervalPolicy{kind: policyDisabled}
}

// Threshold emits a heartbeat on a send once at least d has passed since the
// previous one. A non-positive d is Disabled.
func Threshold(d time.Duration) IntervalPolicy {
	if d <= 0 {
		return Disabled()
	}
	return IntervalPolicy{kind: policyThreshold, interval: d}
}

// PolicyFromSeconds maps the integer HeartbeatInterval setting:
// negative is Always, zero is Disabled, positive is a threshold in seconds.
func PolicyFromSeconds(n int64) IntervalPolicy {
	switch {
	case n < 0:
		return Always()
	case n == 0:
		return Disabled()
	default:
		return Threshold(time.Duration(n) * time.Second)
	}
}

func (p IntervalPolicy) IsAlways() bool   { return p.kind == policyAlways }
func (p IntervalPolicy) IsDisabled() bool { return p.kind == policyDisabled }

// Interval returns the threshold, or zero for Always and Disabled
func (p IntervalPolicy) Interval() time.Duration {
	if p.kind != policyThreshold {
		return 0
	}
	return p.interval
}

func (p IntervalPolicy) String() string {
	switch p.kind {
	case policyAlways:
		return "always"
	case policyThreshold:
		return fmt.Sprintf("every %s", p.interval)
	default:
		return "disabled"
	}
}

// Scheduler tracks when its producer last emitted a heartbeat.
// It is not safe for concurrent use.
type Scheduler struct {
	policy            IntervalPolicy
	lastHeartbeatTime time.Time
}

// NewScheduler creates a scheduler that has never emitted
func NewScheduler(policy IntervalPolicy) *Scheduler {
	return &Scheduler{policy: policy}
}

// Policy returns the configured interval policy
func (s *Scheduler) Policy() IntervalPolicy {
	return s.policy
}

// ShouldEmit reports whether a heartbeat is due at now. A true result
// records now as the last emission, whatever happens to the send afterwards.
func (s *Scheduler) ShouldEmit(now time.Time) bool {
	switch s.policy.kind {
	case policyAlways:
		s.lastHeartbeatTime = now
		return true
	case policyThreshold:
		if !s.lastHeartbeatTime.IsZero() && now.Sub(s.lastHeartbeatTime) < s.policy.interval {
			return false
		}
		s.lastHeartbeatTime = now
		return true
	default:
		return false
	}
}

// LastHeartbeatTime is the zero time until the first emission
func (s *Scheduler) LastHeartbeatTime() time.Time {
	return s.lastHeartbeatTime
}
