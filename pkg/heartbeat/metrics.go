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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeartbeatsEmitted counts heartbeats handed to the transport by producers
	HeartbeatsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazdev_heartbeats_emitted_total",
		Help: "Total number of heartbeats sent by producers",
	})

	// HeartbeatSendFailures counts heartbeats the transport rejected
	HeartbeatSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazdev_heartbeat_send_failures_total",
		Help: "Total number of heartbeat sends that failed",
	})

	// HeartbeatsReceived counts heartbeat shaped payloads by filter verdict
	HeartbeatsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hazdev_heartbeats_received_total",
		Help: "Total number of heartbeat shaped payloads seen by consumers, by verdict",
	}, []string{"verdict"})

	// StatusWriteFailures counts status files dropped after the retry
	StatusWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hazdev_heartbeat_status_write_failures_total",
		Help: "Total number of heartbeat status files that could not be written",
	})
)
