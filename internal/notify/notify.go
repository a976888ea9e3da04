// Package notify announces completed uploads on a best-effort side channel.
// A failed announcement is logged and counted, never returned to the uploader.
package notify

import (
	"context"
	"time"
)

// TimestampLayout is the human-readable time format used in announcements.
const TimestampLayout = "2006-01-02 15:04:05"

// Payload is one announcement.
type Payload struct {
	FileName  string `json:"file_name"`
	FileURL   string `json:"file_url"`
	Timestamp string `json:"timestamp"`
}

// NewPayload stamps an announcement with t.
func NewPayload(fileName, fileURL string, t time.Time) Payload {
	return Payload{FileName: fileName, FileURL: fileURL, Timestamp: t.Format(TimestampLayout)}
}

// Sink delivers announcements to an external channel.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

// Nop is a Sink used when no channel is configured.
type Nop struct{}

// Send does nothing.
func (Nop) Send(context.Context, Payload) error { return nil }
