package ota

import (
	"time"

	"k8s.io/utils/clock"
)

// DefaultRestartDelay leaves the transport time to deliver the success
// response before the device goes down.
const DefaultRestartDelay = time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for timestamps and restart scheduling.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRestartDelay sets the delay between a commit and the device restart.
func WithRestartDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.restartDelay = d
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

type uploadOptions struct {
	source       string
	expectedSize int64
}

// UploadOption configures a single upload.
type UploadOption func(*uploadOptions)

// WithSource labels the session with the transport that feeds it.
func WithSource(source string) UploadOption {
	return func(o *uploadOptions) { o.source = source }
}

// WithExpectedSize announces the image size up front. An image that cannot
// fit the target slot is rejected before the slot is erased.
func WithExpectedSize(n int64) UploadOption {
	return func(o *uploadOptions) {
		if n > 0 {
			o.expectedSize = n
		}
	}
}
