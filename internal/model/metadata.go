package model

import (
	"encoding/json"
	"time"
)

// Metadata is the open, additive status/audit bag attached to every library.
// Fields are only ever added or overwritten, never removed: a newer write that
// doesn't mention a field must not erase it. That invariant is enforced by
// Merge, which every persistence path applies before writing.
//
// Values round-trip through JSON, so numbers read back as float64; use the
// typed accessors instead of raw map access.
type Metadata map[string]any

// Well-known metadata keys. The bag is open; these are just the ones the
// system itself reads and writes.
const (
	MetaFileCount         = "fileCount"
	MetaTotalSize         = "totalSize"
	MetaLastModified      = "lastModified"
	MetaNeedsReconnection = "needsReconnection"
	MetaHasErrors         = "hasErrors"
	MetaErrorMessage      = "errorMessage"
	MetaLastError         = "lastError"
	MetaLastRestored      = "lastRestored"
	MetaLastReconnected   = "lastReconnected"
	MetaReconnectCount    = "reconnectCount"
	MetaEmptyAtLastScan   = "emptyAtLastScan"
	MetaSourcePath        = "sourcePath"
	MetaPersistence       = "persistence"
)

// Keys under the MetaPersistence sub-record.
const (
	PersistSavedAt       = "savedAt"
	PersistStore         = "store"
	PersistSchemaVersion = "schemaVersion"
	PersistSaveCount     = "saveCount"
)

// Merge overlays other onto m without discarding anything: keys present only
// in m survive, keys present in other win, and nested maps are merged
// recursively. Returns the merged bag (m may be nil).
func (m Metadata) Merge(other Metadata) Metadata {
	if m == nil {
		m = Metadata{}
	}
	for k, v := range other {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := m[k].(map[string]any); ok {
				m[k] = map[string]any(Metadata(existing).Merge(Metadata(sub)))
				continue
			}
		}
		m[k] = v
	}
	return m
}

// Clone returns a deep copy of the bag.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	c := make(Metadata, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			c[k] = map[string]any(Metadata(sub).Clone())
			continue
		}
		c[k] = v
	}
	return c
}

// Sub returns the nested map under key, creating it if absent.
func (m Metadata) Sub(key string) Metadata {
	if sub, ok := m[key].(map[string]any); ok {
		return Metadata(sub)
	}
	sub := map[string]any{}
	m[key] = sub
	return Metadata(sub)
}

// GetInt reads an integer value, tolerating the numeric types JSON decoding
// and direct assignment produce.
func (m Metadata) GetInt(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func (m Metadata) SetInt(key string, v int64) { m[key] = v }

func (m Metadata) GetBool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

func (m Metadata) SetBool(key string, v bool) { m[key] = v }

func (m Metadata) GetString(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

func (m Metadata) SetString(key, v string) { m[key] = v }

// GetTime reads a timestamp stored either as time.Time or its RFC 3339 form.
func (m Metadata) GetTime(key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	}
	return time.Time{}, false
}

// SetTime stores a timestamp in RFC 3339 form so the bag stays
// JSON-serializable without custom marshaling.
func (m Metadata) SetTime(key string, t time.Time) {
	m[key] = t.UTC().Format(time.RFC3339Nano)
}
