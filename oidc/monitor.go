// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

// SessionMonitor polls a StatusFrame and confirms a reported session change
// with a silent re-check before signaling a logout.
type SessionMonitor struct {
	frame    StatusFrame
	interval time.Duration
	timeout  time.Duration
	logger   hclog.Logger

	// message returns the status message, or false when there is no session
	// to monitor.
	message func() (string, bool)

	// recheck reports whether the provider session is gone.
	recheck func(ctx context.Context) (loggedOut bool, err error)

	// onLogout runs once per confirming re-check.
	onLogout func()

	checkMu sync.Mutex
	group   singleflight.Group

	mu     sync.Mutex
	paused int
	cancel context.CancelFunc
	done   chan struct{}
}

// MonitorConfig configures a SessionMonitor.
type MonitorConfig struct {
	Frame    StatusFrame
	Interval time.Duration
	Timeout  time.Duration
	Logger   hclog.Logger
	Message  func() (string, bool)
	Recheck  func(ctx context.Context) (bool, error)
	OnLogout func()
}

// NewSessionMonitor creates a stopped monitor.
func NewSessionMonitor(c MonitorConfig) (*SessionMonitor, error) {
	const op = "NewSessionMonitor"
	switch {
	case c.Frame == nil:
		return nil, fmt.Errorf("%s: status frame is nil: %w", op, ErrNilParameter)
	case c.Message == nil, c.Recheck == nil, c.OnLogout == nil:
		return nil, fmt.Errorf("%s: missing callback: %w", op, ErrNilParameter)
	case c.Interval <= 0:
		return nil, fmt.Errorf("%s: interval must be positive: %w", op, ErrInvalidParameter)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultMessageReceiveTimeout
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return &SessionMonitor{
		frame:    c.Frame,
		interval: c.Interval,
		timeout:  c.Timeout,
		logger:   c.Logger,
		message:  c.Message,
		recheck:  c.Recheck,
		onLogout: c.OnLogout,
	}, nil
}

// Start loads the frame from checkSessionURL and starts polling. Starting a
// running monitor is a no-op.
func (m *SessionMonitor) Start(ctx context.Context, checkSessionURL string) error {
	const op = "SessionMonitor.Start"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	loadCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.frame.Load(loadCtx, checkSessionURL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	loopCtx, loopCancel := context.WithCancel(context.Background())
	m.cancel = loopCancel
	m.done = make(chan struct{})
	go m.loop(loopCtx, m.done)
	m.logger.Debug("session monitor started", "interval", m.interval)
	return nil
}

func (m *SessionMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.isPaused() {
				continue
			}
			if _, err := m.Check(ctx); err != nil {
				m.logger.Warn("session check failed", "error", err)
			}
		}
	}
}

// Check posts one status message. A changed or error answer starts a silent
// re-check in the background, joined by any answer arriving while it runs.
// Checks are serialized.
func (m *SessionMonitor) Check(ctx context.Context) (SessionStatus, error) {
	const op = "SessionMonitor.Check"
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	status, err := m.poll(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if status == StatusChanged || status == StatusError {
		m.logger.Debug("session status reported", "status", status)
		m.group.DoChan("recheck", m.runRecheck)
	}
	return status, nil
}

// Status posts one status message and returns the answer without acting on
// it.
func (m *SessionMonitor) Status(ctx context.Context) (SessionStatus, error) {
	const op = "SessionMonitor.Status"
	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	status, err := m.poll(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return status, nil
}

func (m *SessionMonitor) poll(ctx context.Context) (SessionStatus, error) {
	msg, ok := m.message()
	if !ok {
		return StatusUnchanged, nil
	}
	postCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	status, err := m.frame.Post(postCtx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSessionMonitor, err)
	}
	return status, nil
}

func (m *SessionMonitor) runRecheck() (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	loggedOut, err := m.recheck(ctx)
	if err != nil {
		m.logger.Warn("silent re-check failed", "error", err)
		return false, err
	}
	if loggedOut {
		m.logger.Debug("session loss confirmed")
		m.onLogout()
	}
	return loggedOut, nil
}

// Pause suspends polling until a matching Resume.
func (m *SessionMonitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused++
}

// Resume undoes one Pause.
func (m *SessionMonitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused > 0 {
		m.paused--
	}
}

func (m *SessionMonitor) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused > 0
}

// Running reports whether the polling loop is active.
func (m *SessionMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Stop ends polling and closes the frame. It waits for the loop to exit and
// is safe to call more than once.
func (m *SessionMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if err := m.frame.Close(); err != nil {
		m.logger.Warn("unable to close status frame", "error", err)
	}
}
