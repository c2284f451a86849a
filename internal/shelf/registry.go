package shelf

import "sync"

// HandleRegistry holds the session-local capability refs for loaded libraries,
// keyed by library ID. The registry starts empty after every load and is
// repopulated by the reconciliation engine; persisted records never contain
// refs, so this is the only place they live.
type HandleRegistry struct {
	mu    sync.Mutex
	dirs  map[string]DirRef
	files map[string]map[string]FileRef // library ID -> file name -> ref
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{
		dirs:  make(map[string]DirRef),
		files: make(map[string]map[string]FileRef),
	}
}

// SetDir records the directory ref for a library.
func (r *HandleRegistry) SetDir(libraryID string, ref DirRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs[libraryID] = ref
}

// Dir returns the directory ref for a library, or nil if the session has none.
func (r *HandleRegistry) Dir(libraryID string) DirRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirs[libraryID]
}

// SetFiles replaces the file refs recorded for a library.
func (r *HandleRegistry) SetFiles(libraryID string, files []EnumeratedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := make(map[string]FileRef, len(files))
	for _, f := range files {
		if f.Ref != nil {
			m[f.Entry.Name] = f.Ref
		}
	}
	r.files[libraryID] = m
}

// File returns the ref for one file of a library, or nil.
func (r *HandleRegistry) File(libraryID, name string) FileRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[libraryID][name]
}

// Forget drops all refs for a library.
func (r *HandleRegistry) Forget(libraryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirs, libraryID)
	delete(r.files, libraryID)
}

// Clear drops every ref in the registry.
func (r *HandleRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = make(map[string]DirRef)
	r.files = make(map[string]map[string]FileRef)
}
