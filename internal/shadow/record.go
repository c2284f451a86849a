package shadow

import (
	"encoding/json"
	"fmt"
	"time"

	"shelf/internal/model"
)

// CurrentRecordVersion is the newest shadow record format. Version 1 is the
// legacy namespace's minimal shape; version 2 adds the full serialized
// library plus provenance. Both are still written on every put so a reader
// expecting either generation finds data, but reads go through one versioned
// path that tries newest-first and upgrades.
const CurrentRecordVersion = 2

// record is the enhanced-namespace format.
type record struct {
	RecordVersion int            `json:"recordVersion"`
	SavedAt       string         `json:"savedAt"`
	Source        string         `json:"source"`
	Library       *model.Library `json:"library"`
}

// legacyRecord is the version-1 format kept for backward compatibility:
// minimal fields, no metadata, no provenance.
type legacyRecord struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Files     []model.FileEntry `json:"files"`
	CreatedAt time.Time         `json:"createdAt"`
}

// newRecord builds the enhanced record for a library.
func newRecord(lib *model.Library, savedAt time.Time) *record {
	return &record{
		RecordVersion: CurrentRecordVersion,
		SavedAt:       savedAt.UTC().Format(time.RFC3339Nano),
		Source:        "primary-mirror",
		Library:       lib,
	}
}

// newLegacyRecord builds the version-1 record for a library.
func newLegacyRecord(lib *model.Library) *legacyRecord {
	return &legacyRecord{
		ID:        lib.ID,
		Name:      lib.Name,
		Files:     lib.Files,
		CreatedAt: lib.CreatedAt,
	}
}

// decodeRecord parses enhanced-namespace bytes into a library.
func decodeRecord(data []byte) (*model.Library, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding shadow record: %w", err)
	}
	if r.Library == nil {
		return nil, fmt.Errorf("shadow record version %d has no library", r.RecordVersion)
	}
	if r.Library.Metadata == nil {
		r.Library.Metadata = model.Metadata{}
	}
	return r.Library, nil
}

// upgradeLegacy lifts a version-1 record into the current library shape,
// deriving the metadata the old format never carried. Missing timestamps stay
// zero; the reconciliation engine treats such a library like any other loaded
// record.
func upgradeLegacy(data []byte) (*model.Library, error) {
	var l legacyRecord
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding legacy shadow record: %w", err)
	}
	if l.ID == "" {
		return nil, fmt.Errorf("legacy shadow record has no id")
	}

	lib := &model.Library{
		ID:           l.ID,
		Name:         l.Name,
		Files:        l.Files,
		CreatedAt:    l.CreatedAt,
		LastAccessed: l.CreatedAt,
		Metadata:     model.Metadata{},
	}
	lib.Metadata.SetInt(model.MetaFileCount, int64(len(l.Files)))
	lib.Metadata.SetInt(model.MetaTotalSize, lib.TotalSize())
	return lib, nil
}
