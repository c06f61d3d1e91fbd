package appinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	desktopExt   = ".desktop"
	entryGroup   = "Desktop Entry"
	typeApp      = "Application"
	maxEntrySize = 1 << 20
)

// Entry is one installed application.
type Entry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	StartupWMClass string `json:"startup_wm_class,omitempty"`
	NoDisplay      bool   `json:"no_display,omitempty"`
	Path           string `json:"path"`
}

// IsDesktopFile reports whether path names a desktop entry.
func IsDesktopFile(path string) bool {
	return filepath.Ext(path) == desktopExt
}

// DesktopID derives an application id from a desktop file path relative to
// its applications directory: subdirectories join with '-'.
func DesktopID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, desktopExt)
	return strings.ReplaceAll(rel, string(filepath.Separator), "-")
}

// NormalizeID folds an id or window class to the form used for lookups.
func NormalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "_", "-"))
}

// parseFile reads the [Desktop Entry] group of path. It returns ok == false
// for entries that are not installed applications.
func parseFile(path string) (Entry, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, false, err
	}
	defer f.Close()
	return parse(io.LimitReader(f, maxEntrySize))
}

func parse(r io.Reader) (Entry, bool, error) {
	var e Entry
	var hidden bool
	typ := ""
	inEntry := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			if inEntry {
				break
			}
			inEntry = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]") == entryGroup
			continue
		}
		if !inEntry {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Type":
			typ = value
		case "Name":
			e.Name = value
		case "StartupWMClass":
			e.StartupWMClass = value
		case "NoDisplay":
			e.NoDisplay = value == "true"
		case "Hidden":
			hidden = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("failed to read desktop entry: %w", err)
	}
	if typ != typeApp || hidden {
		return Entry{}, false, nil
	}
	return e, true, nil
}
