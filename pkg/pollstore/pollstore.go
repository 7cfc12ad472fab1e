// Package pollstore tracks short-lived dispatcher state: which items a
// poll cursor has already seen, and captured test events awaiting pickup
// by the editor's listen flow.
package pollstore

import "context"

type PollStorage interface {
	// FilterNew returns the subset of itemIDs not yet seen under the
	// cursor, marking them seen. Each new item produces one execution, so
	// the filter is what keeps polling exactly-once per item.
	FilterNew(ctx context.Context, cursor string, itemIDs []string) ([]string, error)

	// CaptureEvent stores a test event under the key, replacing any
	// previous one.
	CaptureEvent(ctx context.Context, key string, payload map[string]any) error

	// TakeEvent removes and returns the captured event for the key, or nil
	// when none is waiting.
	TakeEvent(ctx context.Context, key string) (map[string]any, error)

	Close() error
}
