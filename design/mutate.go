package design

import (
	"cardstudio/core"
	"cardstudio/metrics"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNotSerializable is returned when a value holds content that has no
// serialized form (channels, functions, cyclic structures).
var ErrNotSerializable = errors.New("value is not serializable")

// Clone returns a deep copy of v that shares no mutable structure with it.
// The copy goes through the JSON form, so v must be serializable; a value
// that is not yields ErrNotSerializable and the zero value, never a partial copy.
func Clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("clone: %w: %v", ErrNotSerializable, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("clone: %w: %v", ErrNotSerializable, err)
	}
	return out, nil
}

// Patch returns a copy of items where the item identified by id has the
// attributes named in patch merged over its own. Keys are the item's JSON
// attribute names; "id" and "type" are never patched. Every other item is
// returned unchanged.
//
// A patch for an identity that is not in items leaves the sequence as it is.
// This happens when the client holds a stale selection, so it is logged and
// counted rather than reported as an error.
func Patch(items []core.Item, id string, patch map[string]any) ([]core.Item, error) {
	idx := indexOf(items, id)
	if idx < 0 {
		metrics.PatchMisses.Inc()
		logrus.WithFields(logrus.Fields{
			"item_id":    id,
			"item_count": len(items),
		}).Warn("Patch target not found, leaving items unchanged")
		return items, nil
	}

	patched, err := mergeItem(items[idx], patch)
	if err != nil {
		return items, err
	}

	out := make([]core.Item, len(items))
	copy(out, items)
	out[idx] = patched
	return out, nil
}

func mergeItem(item core.Item, patch map[string]any) (core.Item, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return item, fmt.Errorf("patch: %w: %v", ErrNotSerializable, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return item, err
	}

	for key, value := range patch {
		if key == "id" || key == "type" {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return item, fmt.Errorf("patch %q: %w: %v", key, ErrNotSerializable, err)
		}
		fields[key] = raw
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return item, err
	}
	var out core.Item
	if err := json.Unmarshal(merged, &out); err != nil {
		return item, fmt.Errorf("patch: %w", err)
	}
	return out, nil
}

func indexOf(items []core.Item, id string) int {
	if id == "" {
		return -1
	}
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
