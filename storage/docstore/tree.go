package docstore

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// The tree functions below operate on the canonical in-memory form of a
// document tree: nested map[string]interface{} branches with JSON-compatible
// leaves. Both store implementations share them so that path semantics
// (implicit branch creation, empty-branch pruning, nil-deletes) cannot drift.

// Normalize round-trips value through JSON into the canonical tree form.
func Normalize(value interface{}) (interface{}, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "encoding value")
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decoding value")
	}
	return out, nil
}

// Decode copies the canonical tree value into dest (a pointer) via JSON.
func Decode(value, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding subtree")
	}
	return errors.Wrap(json.Unmarshal(raw, dest), "decoding subtree")
}

// GetAtPath walks the tree along segs. The boolean reports presence.
func GetAtPath(tree map[string]interface{}, segs []string) (interface{}, bool) {
	var node interface{} = tree
	for _, seg := range segs {
		branch, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if node, ok = branch[seg]; !ok {
			return nil, false
		}
	}
	return node, true
}

// SetAtPath writes value at segs, creating intermediate branches as needed.
// A nil value deletes the subtree instead; deletion prunes branches left empty.
func SetAtPath(tree map[string]interface{}, segs []string, value interface{}) error {
	if len(segs) == 0 {
		return ErrEmptyPath
	}
	if value == nil {
		deleteAtPath(tree, segs)
		return nil
	}

	branch := tree
	for _, seg := range segs[:len(segs)-1] {
		child, ok := branch[seg].(map[string]interface{})
		if !ok {
			// overwrite whatever leaf was here; a write deeper than an
			// existing leaf turns it into a branch
			child = make(map[string]interface{})
			branch[seg] = child
		}
		branch = child
	}
	branch[segs[len(segs)-1]] = value
	return nil
}

func deleteAtPath(tree map[string]interface{}, segs []string) {
	if len(segs) == 1 {
		delete(tree, segs[0])
		return
	}
	child, ok := tree[segs[0]].(map[string]interface{})
	if !ok {
		return
	}
	deleteAtPath(child, segs[1:])
	if len(child) == 0 {
		delete(tree, segs[0])
	}
}

// JSONEqual compares two canonical tree values by their JSON encoding.
// Used for UpdateIf conditions; encoding/json marshals maps with sorted keys
// so equal trees always produce equal bytes.
func JSONEqual(a, b interface{}) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, errors.Wrap(err, "encoding condition value")
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, errors.Wrap(err, "encoding condition value")
	}
	return bytes.Equal(ab, bb), nil
}
