package ui

import "github.com/VincentDu2021/uring-sync/internal/event"

// Event re-exports event.Event for convenience.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted    = event.ScanStarted
	ScanComplete   = event.ScanComplete
	FileStarted    = event.FileStarted
	FileProgress   = event.FileProgress
	FileCompleted  = event.FileCompleted
	FileFailed     = event.FileFailed
	VerifyStarted  = event.VerifyStarted
	VerifyOK       = event.VerifyOK
	VerifyFailed   = event.VerifyFailed
	VerifyComplete = event.VerifyComplete
)
