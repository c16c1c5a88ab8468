// Package cache remembers optimization results per source file so batch and
// watch runs skip files whose content has not changed.
package cache

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const cacheFile = "results.gob"

// Entry is the cached outcome of optimizing one file.
type Entry struct {
	Hash         string
	FinalCode    string
	Applied      []string
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Cache is a file-backed map from source path to its last result. An entry
// is valid while the file's content hash and every dependency file are
// unchanged and it is younger than the max age (when one is set).
type Cache struct {
	dir              string
	entries          map[string]Entry
	mutex            sync.Mutex
	maxAge           time.Duration
	dependencyFiles  []string
	dependencyHashes map[string]string
}

// New opens the cache stored in dir, creating dir when needed.
// dependencies are files (such as the configuration) whose change
// invalidates every entry.
func New(dir string, dependencies ...string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:              dir,
		entries:          make(map[string]Entry),
		dependencyHashes: make(map[string]string),
	}
	for _, dep := range dependencies {
		if dep != "" {
			c.dependencyFiles = append(c.dependencyFiles, dep)
		}
	}

	if err := c.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	if c.haveDependenciesChanged() {
		c.entries = make(map[string]Entry)
	}
	c.updateDependencyHashes()
	return c, nil
}

type onDisk struct {
	Entries      map[string]Entry
	Dependencies map[string]string
}

func (c *Cache) load() error {
	file, err := os.Open(filepath.Join(c.dir, cacheFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	var d onDisk
	if err := gob.NewDecoder(file).Decode(&d); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}
	if d.Entries != nil {
		c.entries = d.Entries
	}
	if d.Dependencies != nil {
		c.dependencyHashes = d.Dependencies
	}
	return nil
}

func (c *Cache) save() error {
	tmp, err := os.CreateTemp(c.dir, cacheFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = gob.NewEncoder(tmp).Encode(onDisk{Entries: c.entries, Dependencies: c.dependencyHashes})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(c.dir, cacheFile))
}

// Set records the result computed from content, the bytes read from filename.
// The entry stays valid only while the file still holds those bytes.
func (c *Cache) Set(filename string, content []byte, finalCode string, applied []string) error {
	hash := Hash(content)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	c.entries[filename] = Entry{
		Hash:         hash,
		FinalCode:    finalCode,
		Applied:      append([]string(nil), applied...),
		CreatedAt:    now,
		LastAccessed: now,
	}
	return c.save()
}

// Get returns the cached result for filename if it is still valid.
func (c *Cache) Get(filename string) (Entry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.haveDependenciesChanged() {
		c.entries = make(map[string]Entry)
		c.updateDependencyHashes()
		return Entry{}, false
	}

	entry, ok := c.entries[filename]
	if !ok {
		return Entry{}, false
	}
	if c.isEntryInvalid(filename, entry) {
		delete(c.entries, filename)
		return Entry{}, false
	}

	entry.LastAccessed = time.Now()
	c.entries[filename] = entry
	return entry, true
}

func (c *Cache) isEntryInvalid(filename string, entry Entry) bool {
	if c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge {
		return true
	}
	hash, err := fileHash(filename)
	return err != nil || hash != entry.Hash
}

func (c *Cache) haveDependenciesChanged() bool {
	for _, file := range c.dependencyFiles {
		hash, err := fileHash(file)
		if err != nil {
			hash = ""
		}
		if hash != c.dependencyHashes[file] {
			return true
		}
	}
	return false
}

func (c *Cache) updateDependencyHashes() {
	for _, file := range c.dependencyFiles {
		hash, err := fileHash(file)
		if err != nil {
			// a missing dependency hashes as "" so creating it later invalidates
			hash = ""
		}
		c.dependencyHashes[file] = hash
	}
}

// SetMaxAge bounds entry lifetime. Zero disables expiry.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.maxAge = d
}

// Len returns the number of entries, valid or not.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]Entry)
	return c.save()
}

// Hash returns the content hash entries are keyed by.
func Hash(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

func fileHash(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
