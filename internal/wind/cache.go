package wind

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	cachePrefix = "wind_"
	cacheSuffix = ".tar.zst"
)

// ErrNoCachedDataset is returned by LoadLatest when the cache directory holds
// no dataset archives.
var ErrNoCachedDataset = errors.New("no cached wind dataset")

// Cache keeps downloaded dataset archives on disk as wind_<unix>.tar.zst.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache in dir that keeps at most maxFiles archives.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Write stores an archive fetched at ts, compressing it first if it is a
// plain tar stream, then prunes the oldest archives beyond maxFiles.
func (c *Cache) Write(data []byte, ts time.Time) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	if !IsCompressed(data) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return "", fmt.Errorf("opening zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, make([]byte, 0, len(data)/4))
		enc.Close()
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s%d%s", cachePrefix, ts.Unix(), cacheSuffix))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("committing cache file: %w", err)
	}

	return path, c.prune()
}

// LoadLatest opens and parses the newest cached archive.
func (c *Cache) LoadLatest() (*Dataset, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoCachedDataset
	}

	latest := files[len(files)-1]
	path := filepath.Join(c.dir, latest.name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()

	field, err := LoadArchive(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", latest.name, err)
	}

	return &Dataset{Source: path, FetchedAt: latest.ts, Field: field}, nil
}

type cacheFile struct {
	name string
	ts   time.Time
}

// listFiles returns cached archives sorted oldest first.
func (c *Cache) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, cachePrefix) || !strings.HasSuffix(name, cacheSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, cachePrefix), cacheSuffix)
		unix, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0).UTC()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ts.Before(files[j].ts) })
	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-c.maxFiles] {
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}
