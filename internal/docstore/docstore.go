// Package docstore provides a schemaless, push-capable document store over
// gorm/SQLite. Collections are flat paths, documents are JSON maps, and every
// successful write publishes a full replacement snapshot to subscribers.
package docstore

import (
	"context"
	"encoding/json"
	"time"
)

// Record is a schemaless document body.
type Record map[string]any

// Document pairs a record with its store-assigned id.
type Document struct {
	ID   string
	Data Record
}

// Store is the document database contract the reminder pipeline consumes.
type Store interface {
	// Create inserts data into collection and returns the assigned id.
	Create(ctx context.Context, collection string, data Record) (string, error)
	// Update merges partial into the existing document.
	Update(ctx context.Context, collection, id string, partial Record) error
	// Delete removes the document.
	Delete(ctx context.Context, collection, id string) error
	// List returns the collection's documents ordered by the named field.
	List(ctx context.Context, collection, orderBy string) ([]Document, error)
	// Subscribe delivers a snapshot immediately and after every write to the
	// collection. The returned subscription must be cancelled by the caller.
	Subscribe(collection, orderBy string) *Subscription
}

// Timestamp is the provider encoding for date fields inside a record.
// It survives a JSON round trip as {"_seconds":..., "_nanos":...}.
type Timestamp struct {
	Seconds int64 `json:"_seconds"`
	Nanos   int64 `json:"_nanos"`
}

// NewTimestamp encodes t for storage.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int64(t.Nanosecond())}
}

// Time converts the encoding back to an absolute instant.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, ts.Nanos)
}

// NormalizeTime converts the shapes a record's date field may arrive in
// (Timestamp, its unmarshalled map form, RFC 3339 string, time.Time) into an
// absolute instant. The second return is false when v is not a time at all.
func NormalizeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case Timestamp:
		return t.Time(), true
	case map[string]any:
		sec, okSec := toInt64(t["_seconds"])
		if !okSec {
			return time.Time{}, false
		}
		nanos, _ := toInt64(t["_nanos"])
		return time.Unix(sec, nanos), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
