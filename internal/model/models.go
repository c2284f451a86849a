package model

import "time"

// Library represents a named collection of PDF file references rooted at one
// directory on the local filesystem. This is the persisted record shape: the
// capability handle for the backing directory is never part of it. Handles
// live in the session-local registry, keyed by library ID, and are repopulated
// by reconciliation after every load.
type Library struct {
	ID           string      `json:"id"`   // UUID, assigned at creation, never reassigned
	Name         string      `json:"name"` // Base name of the source directory at creation time
	Files        []FileEntry `json:"files"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastAccessed time.Time   `json:"lastAccessed"`
	Metadata     Metadata    `json:"metadata"`
}

// FileEntry is one file within a library. Name is the deduplication and
// display key within the library; it is not globally unique. Size and
// LastModified are best-effort metadata, defaulted (0 / scan time) when the
// filesystem would not provide them.
type FileEntry struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Clone returns a deep copy of the library.
func (l *Library) Clone() *Library {
	c := *l
	c.Files = make([]FileEntry, len(l.Files))
	copy(c.Files, l.Files)
	c.Metadata = l.Metadata.Clone()
	return &c
}

// TotalSize returns the sum of all file entry sizes.
func (l *Library) TotalSize() int64 {
	var total int64
	for _, f := range l.Files {
		total += f.Size
	}
	return total
}
