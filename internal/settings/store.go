package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists settings to a JSON file so the UI can change them without a
// restart. A corrupt or missing file falls back to defaults.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the settings file, applying defaults for missing keys and
// clamping every value. A missing or unreadable file yields pure defaults.
func (st *Store) Load() Settings {
	s := Default()
	data, err := os.ReadFile(st.path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		// Corrupt file: ignore and keep defaults.
		return Default()
	}
	s.Clamp()
	return s
}

// Update applies a partial update (only the keys present in raw change),
// clamps the result and persists it. Unknown keys are ignored. Returns the
// resulting settings.
func (st *Store) Update(raw map[string]json.RawMessage) (Settings, error) {
	s := st.Load()

	// Round-trip through JSON so only the provided keys are overwritten.
	merged, err := json.Marshal(s)
	if err != nil {
		return s, fmt.Errorf("failed to marshal current settings: %w", err)
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(merged, &asMap); err != nil {
		return s, fmt.Errorf("failed to remap current settings: %w", err)
	}
	for key, value := range raw {
		if _, known := asMap[key]; !known {
			continue
		}
		// A value of the wrong JSON type is skipped, keeping the old value.
		probe := asMap[key]
		asMap[key] = value
		tmp, _ := json.Marshal(asMap)
		var check Settings
		if err := json.Unmarshal(tmp, &check); err != nil {
			asMap[key] = probe
		}
	}

	final, err := json.Marshal(asMap)
	if err != nil {
		return s, fmt.Errorf("failed to merge settings: %w", err)
	}
	if err := json.Unmarshal(final, &s); err != nil {
		return s, fmt.Errorf("failed to parse merged settings: %w", err)
	}
	s.Clamp()

	if err := st.Save(s); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes the settings to disk, creating parent directories as needed.
func (st *Store) Save(s Settings) error {
	s.Clamp()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if dir := filepath.Dir(st.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(st.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
