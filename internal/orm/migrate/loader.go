package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Load reads NNN_name.up.sql / NNN_name.down.sql pairs from dir in fsys and
// returns them ordered by version. Every version needs an up file.
func Load(fsys fs.FS, dir string) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %s: %w", entry.Name(), err)
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: match[2]}
			byVersion[version] = m
		} else if m.Name != match[2] {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, m.Name, match[2])
		}

		if match[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]*Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %d_%s has no up SQL", m.Version, m.Name)
		}
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// FileNames returns the up and down file names of m
func FileNames(m *Migration) (string, string) {
	base := fmt.Sprintf("%03d_%s", m.Version, m.Name)
	return base + ".up.sql", base + ".down.sql"
}

// WriteFiles writes m as an up/down file pair into dir
func WriteFiles(dir string, m *Migration) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	upName, downName := FileNames(m)
	upPath := filepath.Join(dir, upName)
	downPath := filepath.Join(dir, downName)

	if err := os.WriteFile(upPath, []byte(m.Up), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", upPath, err)
	}
	if err := os.WriteFile(downPath, []byte(m.Down), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", downPath, err)
	}
	return upPath, downPath, nil
}
