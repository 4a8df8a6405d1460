// Package docstore defines the hierarchical document store the ledger lives in.
//
// Documents are addressed by slash-separated paths ("students/<id>/financials").
// The store supports point reads and writes of a subtree, an atomic multi-path
// update (all-or-nothing across disjoint branches, nil deletes) and a
// conditional multi-path update used by payment reconciliation.
package docstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrPathNotFound = errors.New("path not found")
	ErrEmptyPath    = errors.New("empty path")
)

type Store interface {
	// Get decodes the subtree at path into dest (a pointer).
	// Returns ErrPathNotFound if nothing exists at path.
	Get(ctx context.Context, path string, dest interface{}) error

	// Set replaces the subtree at path with value.
	Set(ctx context.Context, path string, value interface{}) error

	// Update applies all path→value pairs as a single atomic write.
	// A nil value deletes the subtree at that path. On error no path is changed.
	Update(ctx context.Context, updates map[string]interface{}) error

	// UpdateIf applies updates atomically only if every conds entry still
	// holds: the value at each path must equal its expected value (compared
	// by canonical JSON form; a nil expectation means the path must be
	// absent). All conditions are evaluated under the same guard as the
	// write, so nothing can change between the check and the update.
	// It reports whether the updates were applied. A failed condition is
	// not an error.
	UpdateIf(ctx context.Context, conds map[string]interface{}, updates map[string]interface{}) (bool, error)
}

// SplitPath breaks a slash-separated path into its segments,
// dropping empty segments from leading/trailing/doubled slashes.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// Join assembles path segments into a store path.
func Join(segs ...string) string {
	return strings.Join(segs, "/")
}
