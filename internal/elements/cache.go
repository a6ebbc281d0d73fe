package elements

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNoCache is returned when a group has no cached data on disk.
var ErrNoCache = errors.New("no cache files found")

// Cache keeps raw group payloads on disk as <group>_<unix>.json for OMM and
// <group>_<unix>.tle for TLE text. Each group keeps at most maxFiles.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache rooted at dir. maxFiles <= 0 keeps 5 per group.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Write stores data for group stamped with ts, then prunes the group's
// older files. The file appears atomically.
func (c *Cache) Write(group string, data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	name := fmt.Sprintf("%s_%d%s", group, ts.Unix(), payloadExt(data))
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("publishing cache file: %w", err)
	}
	return c.prune(group)
}

// LoadLatest returns the newest payload for group and its timestamp.
func (c *Cache) LoadLatest(group string) ([]byte, time.Time, error) {
	files, err := c.listFiles(group)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("group %s: %w", group, ErrNoCache)
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, latest.ts, nil
}

func payloadExt(data []byte) string {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return ".json"
	}
	return ".tle"
}

type cacheFile struct {
	name string
	ts   time.Time
}

// listFiles returns group's cache files, oldest first.
func (c *Cache) listFiles(group string) ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(e.Name(), group+"_")
		if !ok {
			continue
		}
		ext := filepath.Ext(stamp)
		if ext != ".json" && ext != ".tle" {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(stamp, ext), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: e.Name(), ts: time.Unix(unix, 0)})
	}

	slices.SortFunc(files, func(a, b cacheFile) int {
		return a.ts.Compare(b.ts)
	})
	return files, nil
}

func (c *Cache) prune(group string) error {
	files, err := c.listFiles(group)
	if err != nil {
		return err
	}
	for len(files) > c.maxFiles {
		if err := os.Remove(filepath.Join(c.dir, files[0].name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", files[0].name, err)
		}
		files = files[1:]
	}
	return nil
}
