package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// ManifestClass is one line of a JSON-lines class manifest.
type ManifestClass struct {
	ID       string   `json:"id"`
	Label    string   `json:"label,omitempty"`
	Mappings []string `json:"mappings,omitempty"`
}

// WriteManifest writes classes as a JSON-lines manifest at path, creating
// parent directories as needed.
func WriteManifest(t testing.TB, path string, classes ...ManifestClass) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, c := range classes {
		if err := enc.Encode(c); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}
