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

package hazdev_plugin

import (
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// HazdevInputMetrics provides metrics collection for the hazdev_broker input
type HazdevInputMetrics struct {
	ConnectedGauge       *service.MetricGauge
	PollCounter          *service.MetricCounter
	PollErrCounter       *service.MetricCounter
	MessagesForwarded    *service.MetricCounter
	LastHeartbeatGauge   *service.MetricGauge
	HeartbeatStaleGauge  *service.MetricGauge
	CommitErrCounter     *service.MetricCounter
	BatchProcessingTimer *service.MetricTimer
}

// NewHazdevInputMetrics creates the input metrics on the given provider
func NewHazdevInputMetrics(metricsProvider *service.Metrics) *HazdevInputMetrics {
	return &HazdevInputMetrics{
		ConnectedGauge:       metricsProvider.NewGauge("input_hazdev_connected"),
		PollCounter:          metricsProvider.NewCounter("input_hazdev_polls"),
		PollErrCounter:       metricsProvider.NewCounter("input_hazdev_poll_errors"),
		MessagesForwarded:    metricsProvider.NewCounter("input_hazdev_messages_forwarded"),
		LastHeartbeatGauge:   metricsProvider.NewGauge("input_hazdev_last_heartbeat_unix"),
		HeartbeatStaleGauge:  metricsProvider.NewGauge("input_hazdev_heartbeat_stale"),
		CommitErrCounter:     metricsProvider.NewCounter("input_hazdev_commit_errors"),
		BatchProcessingTimer: metricsProvider.NewTimer("input_hazdev_batch_processing_time"),
	}
}

// NewMockMetrics creates input metrics that are not exported anywhere
func NewMockMetrics() *HazdevInputMetrics {
	return NewHazdevInputMetrics(service.MockResources().Metrics())
}

func (m *HazdevInputMetrics) LogConnected() {
	m.ConnectedGauge.Set(1)
}

func (m *HazdevInputMetrics) LogDisconnected() {
	m.ConnectedGauge.Set(0)
}

// LogPoll records a finished poll and how many messages it forwarded
func (m *HazdevInputMetrics) LogPoll(startTime time.Time, forwarded int) {
	m.PollCounter.Incr(1)
	m.MessagesForwarded.Incr(int64(forwarded))
	m.BatchProcessingTimer.Timing(int64(time.Since(startTime)))
}

func (m *HazdevInputMetrics) LogPollError() {
	m.PollErrCounter.Incr(1)
}

func (m *HazdevInputMetrics) LogCommitError() {
	m.CommitErrCounter.Incr(1)
}

// LogHeartbeat exports the last heartbeat time and whether it is stale
func (m *HazdevInputMetrics) LogHeartbeat(last time.Time, stale bool) {
	if !last.IsZero() {
		m.LastHeartbeatGauge.Set(last.Unix())
	}
	if stale {
		m.HeartbeatStaleGauge.Set(1)
	} else {
		m.HeartbeatStaleGauge.Set(0)
	}
}

// HazdevOutputMetrics provides metrics collection for the hazdev_broker output
type HazdevOutputMetrics struct {
	MessagesSent  *service.MetricCounter
	SendErrors    *service.MetricCounter
	TopicsCreated *service.MetricCounter
}

// NewHazdevOutputMetrics creates the output metrics on the given provider
func NewHazdevOutputMetrics(metricsProvider *service.Metrics) *HazdevOutputMetrics {
	return &HazdevOutputMetrics{
		MessagesSent:  metricsProvider.NewCounter("output_hazdev_messages_sent"),
		SendErrors:    metricsProvider.NewCounter("output_hazdev_send_errors"),
		TopicsCreated: metricsProvider.NewCounter("output_hazdev_topics_ensured"),
	}
}

// NewMockOutputMetrics creates output metrics that are not exported anywhere
func NewMockOutputMetrics() *HazdevOutputMetrics {
	return NewHazdevOutputMetrics(service.MockResources().Metrics())
}
