package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMetadata_Merge(t *testing.T) {
	t.Run("keeps fields the new write does not mention", func(t *testing.T) {
		old := Metadata{
			"fileCount":         int64(3),
			"needsReconnection": true,
		}
		updated := old.Merge(Metadata{"fileCount": int64(5)})

		if n, _ := updated.GetInt("fileCount"); n != 5 {
			t.Errorf("fileCount = %d, want 5", n)
		}
		if !updated.GetBool("needsReconnection") {
			t.Error("needsReconnection was dropped by merge")
		}
	})

	t.Run("merges nested maps recursively", func(t *testing.T) {
		old := Metadata{
			"persistence": map[string]any{
				"store":   "primary",
				"savedAt": "2024-01-15T10:30:00Z",
			},
		}
		updated := old.Merge(Metadata{
			"persistence": map[string]any{"store": "shadow"},
		})

		prov := updated.Sub("persistence")
		if s, _ := prov.GetString("store"); s != "shadow" {
			t.Errorf("persistence.store = %q, want %q", s, "shadow")
		}
		if _, ok := prov.GetString("savedAt"); !ok {
			t.Error("persistence.savedAt was dropped by nested merge")
		}
	})

	t.Run("merge into nil receiver", func(t *testing.T) {
		var m Metadata
		merged := m.Merge(Metadata{"hasErrors": true})
		if !merged.GetBool("hasErrors") {
			t.Error("merge into nil metadata lost the value")
		}
	})
}

func TestMetadata_Clone(t *testing.T) {
	original := Metadata{
		"fileCount":   int64(2),
		"persistence": map[string]any{"store": "primary"},
	}
	clone := original.Clone()

	clone.SetInt("fileCount", 9)
	clone.Sub("persistence").SetString("store", "shadow")

	if n, _ := original.GetInt("fileCount"); n != 2 {
		t.Errorf("clone mutation leaked into original: fileCount = %d", n)
	}
	if s, _ := original.Sub("persistence").GetString("store"); s != "primary" {
		t.Errorf("clone mutation leaked into nested map: store = %q", s)
	}
}

func TestMetadata_GetInt(t *testing.T) {
	// JSON decoding produces float64; direct writes produce int64.
	raw := `{"fileCount": 4}`
	m := Metadata{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if n, ok := m.GetInt("fileCount"); !ok || n != 4 {
		t.Errorf("GetInt(json float64) = %d, %v; want 4, true", n, ok)
	}

	m.SetInt("totalSize", 1024)
	if n, ok := m.GetInt("totalSize"); !ok || n != 1024 {
		t.Errorf("GetInt(int64) = %d, %v; want 1024, true", n, ok)
	}

	if _, ok := m.GetInt("absent"); ok {
		t.Error("GetInt(absent) reported ok")
	}
}

func TestMetadata_TimeRoundTrip(t *testing.T) {
	m := Metadata{}
	stamp := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	m.SetTime("lastRestored", stamp)

	// Stored as a string so a JSON round trip is transparent.
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := Metadata{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok := decoded.GetTime("lastRestored")
	if !ok {
		t.Fatal("lastRestored missing after round trip")
	}
	if !got.Equal(stamp) {
		t.Errorf("lastRestored = %v, want %v", got, stamp)
	}
}

func TestLibrary_Clone(t *testing.T) {
	lib := &Library{
		ID:    "lib-1",
		Name:  "Notes",
		Files: []FileEntry{{Name: "a.pdf", Size: 100}},
		Metadata: Metadata{
			"fileCount": int64(1),
		},
	}

	clone := lib.Clone()
	clone.Files[0].Name = "b.pdf"
	clone.Metadata.SetInt("fileCount", 7)

	if lib.Files[0].Name != "a.pdf" {
		t.Errorf("clone mutation leaked into original files: %q", lib.Files[0].Name)
	}
	if n, _ := lib.Metadata.GetInt("fileCount"); n != 1 {
		t.Errorf("clone mutation leaked into original metadata: %d", n)
	}
}

func TestLibrary_TotalSize(t *testing.T) {
	lib := &Library{Files: []FileEntry{{Size: 100}, {Size: 50}}}
	if got := lib.TotalSize(); got != 150 {
		t.Errorf("TotalSize() = %d, want 150", got)
	}
}
