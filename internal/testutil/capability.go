package testutil

import (
	"context"
	"fmt"
	"sync"

	"shelf/internal/shelf"
)

// MockDirRef is a directory capability for tests.
type MockDirRef struct {
	RefID   string
	DirName string
}

func (r MockDirRef) Identity() string { return r.RefID }
func (r MockDirRef) Name() string     { return r.DirName }

// MockFileRef is a file capability for tests.
type MockFileRef struct {
	RefID    string
	FileName string
}

func (r MockFileRef) Identity() string { return r.RefID }
func (r MockFileRef) Name() string     { return r.FileName }

// VerifyCall records one Verify invocation so tests can assert that passive
// loads never elevate.
type VerifyCall struct {
	RefID   string
	Elevate bool
}

// MockCapabilityStore is an in-memory shelf.CapabilityStore. Grants default
// to denied until SetGrant is called for a ref.
type MockCapabilityStore struct {
	mu           sync.Mutex
	grants       map[string]shelf.Grant
	files        map[string][]shelf.EnumeratedFile
	verifyErr    map[string]error
	enumerateErr map[string]error
	resolves     map[string]shelf.DirRef

	VerifyCalls    []VerifyCall
	EnumerateCalls int
	CacheClears    int
	ResolveCalls   []string
}

func NewMockCapabilityStore() *MockCapabilityStore {
	return &MockCapabilityStore{
		grants:       make(map[string]shelf.Grant),
		files:        make(map[string][]shelf.EnumeratedFile),
		verifyErr:    make(map[string]error),
		enumerateErr: make(map[string]error),
		resolves:     make(map[string]shelf.DirRef),
	}
}

// SetGrant sets the verification outcome for a ref.
func (m *MockCapabilityStore) SetGrant(refID string, g shelf.Grant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[refID] = g
}

// SetFiles sets the enumeration result for a ref.
func (m *MockCapabilityStore) SetFiles(refID string, files []shelf.EnumeratedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[refID] = files
}

// SetVerifyError makes Verify fail for a ref.
func (m *MockCapabilityStore) SetVerifyError(refID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyErr[refID] = err
}

// SetEnumerateError makes Enumerate fail for a ref.
func (m *MockCapabilityStore) SetEnumerateError(refID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumerateErr[refID] = err
}

// SetResolve makes Resolve succeed for a stored location.
func (m *MockCapabilityStore) SetResolve(path string, ref shelf.DirRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolves[path] = ref
}

func (m *MockCapabilityStore) Resolve(rawPath string) (shelf.DirRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResolveCalls = append(m.ResolveCalls, rawPath)
	if ref, ok := m.resolves[rawPath]; ok {
		return ref, nil
	}
	return nil, fmt.Errorf("no directory at %s", rawPath)
}

func (m *MockCapabilityStore) Verify(_ context.Context, ref shelf.DirRef, elevate bool) (shelf.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls = append(m.VerifyCalls, VerifyCall{RefID: ref.Identity(), Elevate: elevate})
	if err := m.verifyErr[ref.Identity()]; err != nil {
		return shelf.GrantDenied, err
	}
	return m.grants[ref.Identity()], nil
}

func (m *MockCapabilityStore) Enumerate(_ context.Context, ref shelf.DirRef) ([]shelf.EnumeratedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnumerateCalls++
	if err := m.enumerateErr[ref.Identity()]; err != nil {
		return nil, err
	}
	return m.files[ref.Identity()], nil
}

func (m *MockCapabilityStore) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheClears++
}

// MockPicker returns a fixed ref or error from PickDirectory.
type MockPicker struct {
	Ref   shelf.DirRef
	Err   error
	Calls int
}

func (p *MockPicker) PickDirectory(context.Context) (shelf.DirRef, error) {
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Ref, nil
}

// Compile-time checks
var (
	_ shelf.CapabilityStore = (*MockCapabilityStore)(nil)
	_ shelf.DirectoryPicker = (*MockPicker)(nil)
	_ shelf.DirRef          = MockDirRef{}
	_ shelf.FileRef         = MockFileRef{}
)
