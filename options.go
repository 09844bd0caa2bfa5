// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CurrentPolicy decides what MakeCurrent does when the context is already
// current on another thread.
type CurrentPolicy uint8

const (
	// FailFast returns ErrContextInUse immediately.
	FailFast CurrentPolicy = iota
	// Block waits until the owning thread releases the context.
	Block
)

// String returns the policy name as used in configuration files.
func (p CurrentPolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("CurrentPolicy(%d)", p)
	}
}

// ParseCurrentPolicy parses "fail-fast" or "block".
func ParseCurrentPolicy(s string) (CurrentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return FailFast, nil
	case "block":
		return Block, nil
	}
	return FailFast, fmt.Errorf("gpusurf: unknown current policy %q", s)
}

// DefaultSyncTimeout bounds how long surface texture creation waits for the
// producer's writes to complete.
const DefaultSyncTimeout = 5 * time.Second

// Option configures a Connection or a Device.
//
// Options given to Connect become the defaults of every device opened
// through that connection; options given to NewDevice override them.
type Option func(*options)

type options struct {
	backend     string
	adapter     AdapterPreference
	policy      CurrentPolicy
	syncTimeout time.Duration
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		policy:      FailFast,
		syncTimeout: DefaultSyncTimeout,
	}
}

func (o *options) apply(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
}

// log returns the configured logger, falling back to the package logger.
func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

// WithBackend selects a registered backend by name ("vulkan", "gl",
// "software", ...). The default is the highest-priority registered backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithAdapterPreference sets the preference used by Connection.DefaultAdapter.
func WithAdapterPreference(p AdapterPreference) Option {
	return func(o *options) {
		o.adapter = p
	}
}

// WithCurrentPolicy sets the policy for MakeCurrent on contexts created
// afterwards.
func WithCurrentPolicy(p CurrentPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithSyncTimeout bounds producer synchronization when creating surface
// textures. Non-positive values restore DefaultSyncTimeout.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			d = DefaultSyncTimeout
		}
		o.syncTimeout = d
	}
}

// WithLogger sets a logger for one connection or device instead of the
// package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConfig applies every field set in cfg. Options after it override it.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		cfg.applyTo(o)
	}
}
