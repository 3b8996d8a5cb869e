// Package ota drives firmware update sessions from the first chunk to the
// boot selector switch.
//
// A transport calls BeginUpload, then FeedChunk once per received chunk, and
// finally EndUpload on end-of-stream or Abort when the connection drops. At
// most one session is active at a time. A committed session schedules a
// device restart so the new image takes effect.
package ota
