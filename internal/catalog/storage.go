package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"ddtcms/pkg/logging"
)

const subsystem = "CatalogStorage"

// Storage manages the local catalog of releases, categories, cases, and
// test sets, persisted as YAML files in one directory. It is the local
// stand-in for the management server's CRUD surface: enough to pick a test
// set and release for a run without a browser.
type Storage struct {
	mu       sync.RWMutex
	dir      string
	releases map[int64]Release
	groups   map[int64]Category
	cases    map[int64]TestCase
	testSets map[int64]TestSet
}

// NewStorage creates a catalog storage rooted at dir and loads whatever is
// there. A missing directory yields an empty catalog, not an error.
func NewStorage(dir string) (*Storage, error) {
	s := &Storage{dir: dir}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load re-reads every *.yaml file in the catalog directory and rebuilds the
// in-memory catalog.
func (s *Storage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releases = make(map[int64]Release)
	s.groups = make(map[int64]Category)
	s.cases = make(map[int64]TestCase)
	s.testSets = make(map[int64]TestSet)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug(subsystem, "catalog directory %s does not exist, starting empty", s.dir)
			return nil
		}
		return fmt.Errorf("failed to read catalog directory %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read catalog file %s: %w", path, err)
		}
		var doc Catalog
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
		}
		if err := s.mergeLocked(doc, path); err != nil {
			return err
		}
	}

	logging.Info(subsystem, "loaded catalog: %d releases, %d test sets, %d cases", len(s.releases), len(s.testSets), len(s.cases))
	return nil
}

func (s *Storage) mergeLocked(doc Catalog, path string) error {
	for _, r := range doc.Releases {
		if r.Name == "" {
			return fmt.Errorf("%s: release %d has no name", path, r.ID)
		}
		s.releases[r.ID] = r
	}
	for _, c := range doc.Categories {
		s.groups[c.ID] = c
	}
	for _, tc := range doc.Cases {
		if tc.Name == "" {
			return fmt.Errorf("%s: case %d has no name", path, tc.ID)
		}
		s.cases[tc.ID] = tc
	}
	for _, ts := range doc.TestSets {
		if ts.Name == "" {
			return fmt.Errorf("%s: test set %d has no name", path, ts.ID)
		}
		s.testSets[ts.ID] = ts
	}
	return nil
}

// Releases lists all releases sorted by name.
func (s *Storage) Releases() []Release {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Release, 0, len(s.releases))
	for _, r := range s.releases {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TestSets lists all test sets sorted by name.
func (s *Storage) TestSets() []TestSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TestSet, 0, len(s.testSets))
	for _, ts := range s.testSets {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Categories lists all categories sorted by name.
func (s *Storage) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, 0, len(s.groups))
	for _, c := range s.groups {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindRelease resolves a release by name.
func (s *Storage) FindRelease(name string) (Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.releases {
		if r.Name == name {
			return r, nil
		}
	}
	return Release{}, fmt.Errorf("%q: %w", name, ErrReleaseNotFound)
}

// FindTestSet resolves a test set by name.
func (s *Storage) FindTestSet(name string) (TestSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ts := range s.testSets {
		if ts.Name == name {
			return ts, nil
		}
	}
	return TestSet{}, fmt.Errorf("%q: %w", name, ErrTestSetNotFound)
}

// SaveTestSet adds or replaces a test set and persists it to its own file.
func (s *Storage) SaveTestSet(ts TestSet) error {
	if ts.Name == "" {
		return fmt.Errorf("test set name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testSets[ts.ID] = ts
	return s.writeLocked(fmt.Sprintf("testset-%d.yaml", ts.ID), Catalog{TestSets: []TestSet{ts}})
}

// SaveRelease adds or replaces a release and persists it to its own file.
func (s *Storage) SaveRelease(r Release) error {
	if r.Name == "" {
		return fmt.Errorf("release name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[r.ID] = r
	return s.writeLocked(fmt.Sprintf("release-%d.yaml", r.ID), Catalog{Releases: []Release{r}})
}

func (s *Storage) writeLocked(name string, doc Catalog) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory %s: %w", s.dir, err)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog file %s: %w", path, err)
	}
	logging.Debug(subsystem, "wrote %s", path)
	return nil
}
