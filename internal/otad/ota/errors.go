package ota

import "errors"

var (
	// ErrSessionBusy is returned by BeginUpload while another session is
	// active or a restart into a committed image is pending. Retry later.
	ErrSessionBusy = errors.New("ota: update session already in progress")

	// ErrNoActiveSession is returned when a handle names no session at all.
	ErrNoActiveSession = errors.New("ota: no active update session")

	// ErrSessionClosed is returned when a handle names a session that
	// already reached Committed or Aborted.
	ErrSessionClosed = errors.New("ota: update session is closed")

	// ErrEmptyUpload is returned by EndUpload when no image byte was written.
	ErrEmptyUpload = errors.New("ota: upload ended without any image data")
)
