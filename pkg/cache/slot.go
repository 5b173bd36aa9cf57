package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile is the completion marker written into a slot before it is
// committed. Version directories without it are ignored.
const MarkerFile = ".shelf-slot.json"

// Slot is one installed version of a package.
type Slot struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Path        string    `json:"-"`
	InstalledAt time.Time `json:"installed_at"`
}

// marker is the on-disk form of a Slot.
type marker struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
}

func writeMarker(dir string, s Slot) error {
	data, err := json.MarshalIndent(marker{
		Name:        s.Name,
		Version:     s.Version,
		InstalledAt: s.InstalledAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerFile), data, 0o644)
}

// readMarker loads the marker of the slot at dir. ok is false when the
// directory is gone or was never completed.
func readMarker(dir string) (m marker, ok bool) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return marker{}, false
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return marker{}, false
	}
	return m, true
}
