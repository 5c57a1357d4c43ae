package catalog

import "errors"

// Release is one versioned release the test sets target.
type Release struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Active      bool   `yaml:"active,omitempty"`
}

// Category groups test cases for navigation.
type Category struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// TestCase is one named test case; its scenarios and steps live on the
// management server and are reached through the step sync engine.
type TestCase struct {
	ID         int64  `yaml:"id"`
	Name       string `yaml:"name"`
	CategoryID int64  `yaml:"categoryId,omitempty"`
}

// TestSet is a runnable collection of test cases bound to a release.
type TestSet struct {
	ID          int64   `yaml:"id"`
	Name        string  `yaml:"name"`
	ReleaseID   int64   `yaml:"releaseId"`
	CaseIDs     []int64 `yaml:"caseIds,omitempty"`
	Description string  `yaml:"description,omitempty"`
}

// Catalog is the document shape of one catalog YAML file. Multiple files in
// the catalog directory merge into one catalog.
type Catalog struct {
	Releases   []Release  `yaml:"releases,omitempty"`
	Categories []Category `yaml:"categories,omitempty"`
	Cases      []TestCase `yaml:"cases,omitempty"`
	TestSets   []TestSet  `yaml:"testSets,omitempty"`
}

var (
	// ErrReleaseNotFound is returned when a release name resolves to nothing.
	ErrReleaseNotFound = errors.New("release not found in catalog")
	// ErrTestSetNotFound is returned when a test set name resolves to nothing.
	ErrTestSetNotFound = errors.New("test set not found in catalog")
)
