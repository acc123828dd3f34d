// Package realtime defines the path-addressed tree store the chat engine
// synchronizes over. Paths are slash separated keys ("chatRooms/c1/messages").
package realtime

import (
	"context"
	"errors"
)

var ErrInvalidPath = errors.New("invalid path")

// Unsubscribe detaches a listener. It is safe to call more than once.
type Unsubscribe func()

// Channel is a hierarchical key/value store with live subscriptions.
type Channel interface {
	// Subscribe delivers the current value at path, then every change of the
	// subtree. Callbacks may run on a goroutine owned by the channel.
	Subscribe(ctx context.Context, path string, onValue func(Snapshot), onError func(error)) (Unsubscribe, error)
	// Get reads the value at path once.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the value at path. A nil value deletes the node.
	Set(ctx context.Context, path string, value any) error
	// Update writes every relative child path in fields under path at once.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push reserves a new unique child under path and returns its full path.
	Push(ctx context.Context, path string) (string, error)
}
