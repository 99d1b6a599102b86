package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hirak99/video-summarizer/log"
)

// defaultFilePermission and defaultDirPermission mirror the teacher's
// atomic-write conventions (evaluation/evalresult/local/local.go).
const (
	defaultTempFileSuffix = ".tmp"
	defaultDirPermission  = 0o755
	defaultFilePermission = 0o644
)

// PersistedMeta is the "meta" sub-object of a persisted node document
// (spec.md §6.1).
type PersistedMeta struct {
	OutputTS  *float64 `json:"output_ts"`
	Time      *float64 `json:"time"`
	Overriden bool     `json:"overriden,omitempty"`
	Passive   bool     `json:"passive,omitempty"`
}

// PersistedNode is the JSON shape of one node's cached result, keyed by
// string-encoded node id at the top level (spec.md §6.1).
type PersistedNode struct {
	Name    string        `json:"name"`
	Output  any           `json:"output"`
	Version any           `json:"version"`
	Meta    PersistedMeta `json:"meta"`

	// LegacyOutputTS accepts the obsolete top-level "output_ts" key accepted
	// at load for backward compatibility (spec.md §6.1).
	LegacyOutputTS *float64 `json:"output_ts,omitempty"`
}

// decodePersistedDocument parses a results document, tolerating both
// integer-looking string keys (the only valid on-disk form) and the legacy
// per-record output_ts field.
func decodePersistedDocument(data []byte) (map[int]PersistedNode, error) {
	var raw map[string]PersistedNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode persisted document: %w", err)
	}
	out := make(map[int]PersistedNode, len(raw))
	for key, node := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			// Unknown / non-integer top-level key: ignored, per spec.md §7
			// "Unknown / extra fields are preserved only if they round-trip".
			continue
		}
		out[id] = node
	}
	return out, nil
}

// encodePersistedDocument serializes results keyed by string-encoded node id
// (JSON object keys must be strings; spec.md §6.1).
func encodePersistedDocument(results map[int]PersistedNode) ([]byte, error) {
	raw := make(map[string]PersistedNode, len(results))
	for id, node := range results {
		raw[strconv.Itoa(id)] = node
	}
	return json.Marshal(raw)
}

// writeDocumentAtomically writes data to path via a sibling tempfile plus
// rename, so a crash mid-write leaves either the previous valid document or
// the new one (spec.md §5, §9). Grounded verbatim on
// evaluation/evalresult/local/local.go's store().
func writeDocumentAtomically(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirPermission); err != nil {
		return fmt.Errorf("mkdir all %s: %w", dir, err)
	}
	tmp := path + defaultTempFileSuffix
	if err := os.WriteFile(tmp, data, defaultFilePermission); err != nil {
		return fmt.Errorf("write file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename file %s to %s: %w", tmp, path, err)
	}
	return nil
}

// readDocumentIfExists reads path's contents, returning (nil, nil) if the
// file does not exist (spec.md §4.5 persist: "If path exists, loads it").
func readDocumentIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return data, nil
}

func logPersistSave(path string) {
	log.Infof("Saving graph state to %s", path)
}
