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

// Package backoff suspends a failing client loop with exponential backoff
// and gives up once a retry budget is exhausted.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/hazdev-broker/pkg/logger"
)

var (
	// ErrSuspended is wrapped by Err while a backoff period is running
	ErrSuspended = errors.New("operation suspended due to temporary error")

	// ErrPermanentFailure is wrapped by Err once the retry budget is exhausted
	ErrPermanentFailure = errors.New("operation permanently failed after max retries")
)

// Manager tracks consecutive failures of one operation. Every failure
// pushes the next attempt further out, a success resets the budget.
type Manager struct {
	mu sync.RWMutex

	lastError        error
	policy           backoff.BackOff
	suspendedUntil   time.Time
	permanentFailure bool
	failures         uint64

	name string
	now  func() time.Time
	log  *zap.SugaredLogger
}

// Config holds the settings for a Manager
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxRetries is the number of failures tolerated before giving up; zero retries forever
	MaxRetries uint64
	Name       string
	Logger     *zap.SugaredLogger
}

// DefaultConfig starts at 500ms, caps at 30s and never gives up
func DefaultConfig(name string, log *zap.SugaredLogger) Config {
	return Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Name:            name,
		Logger:          log,
	}
}

// NewManager creates a Manager from config
func NewManager(config Config) *Manager {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = config.InitialInterval
	exp.MaxInterval = config.MaxInterval
	exp.MaxElapsedTime = 0

	var policy backoff.BackOff = exp
	if config.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(exp, config.MaxRetries)
	}
	policy.Reset()

	return &Manager{
		policy: policy,
		name:   config.Name,
		now:    time.Now,
		log:    logger.OrFor(config.Logger, config.Name),
	}
}

// WithPolicy swaps the backoff policy, e.g. for a constant one in tests
func (m *Manager) WithPolicy(policy backoff.BackOff) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy.Reset()
	m.policy = policy
	return m
}

// WithClock replaces the time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Failure records err and starts the next backoff period. It returns true
// once the retry budget is exhausted.
func (m *Manager) Failure(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = err
	if m.permanentFailure {
		return true
	}
	m.failures++

	next := m.policy.NextBackOff()
	if next == backoff.Stop {
		m.log.Errorf("%s failed %d times, giving up: %v", m.name, m.failures, err)
		m.permanentFailure = true
		m.suspendedUntil = time.Time{}
		return true
	}

	m.suspendedUntil = m.now().Add(next)
	m.log.Debugf("Suspending %s for %s after error: %v", m.name, next, err)
	return false
}

// Success clears the error state and restores the full retry budget
func (m *Manager) Success() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = nil
	m.failures = 0
	m.policy.Reset()
	m.suspendedUntil = time.Time{}
	m.permanentFailure = false
}

// ShouldSkip is true while a backoff period runs or after permanent failure
func (m *Manager) ShouldSkip() bool {
	return m.Remaining() > 0 || m.IsPermanentlyFailed()
}

// Remaining is how long the current backoff period still lasts
func (m *Manager) Remaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastError == nil || m.suspendedUntil.IsZero() {
		return 0
	}
	if d := m.suspendedUntil.Sub(m.now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the current backoff period is over or ctx ends
func (m *Manager) Wait(ctx context.Context) error {
	d := m.Remaining()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsPermanentlyFailed is true once the retry budget is exhausted
func (m *Manager) IsPermanentlyFailed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permanentFailure
}

// LastError returns the most recent failure, nil after Success
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Failures is the number of failures since the last success
func (m *Manager) Failures() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

// Err describes the current state as an error wrapping ErrPermanentFailure
// or ErrSuspended together with the last error, or nil when not backing off.
func (m *Manager) Err() error {
	if m.IsPermanentlyFailed() {
		return fmt.Errorf("%w: %w", ErrPermanentFailure, m.LastError())
	}
	if d := m.Remaining(); d > 0 {
		return fmt.Errorf("%w (retry after %v): %w", ErrSuspended, d, m.LastError())
	}
	return nil
}
