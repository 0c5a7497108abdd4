// Package resources bundles the module specification and locates test data.
package resources

import (
	_ "embed"
	"path/filepath"
	"sync"

	"github.com/artpar/amodule/core/spec"
)

//go:embed specification.yaml
var specificationYAML []byte

// DefaultDir is where the regression images live relative to the working
// directory of a source checkout.
const DefaultDir = "resources/testdata"

var (
	mu  sync.RWMutex
	dir = DefaultDir
)

var load = sync.OnceValues(func() (*spec.Specification, error) {
	return spec.Parse(specificationYAML)
})

// Load returns the bundled specification. It is parsed on first use and
// shared afterwards; callers must not modify it.
func Load() (*spec.Specification, error) {
	return load()
}

// Raw returns the bundled specification source.
func Raw() []byte {
	return specificationYAML
}

// SetDir changes the directory Path resolves against.
func SetDir(d string) {
	mu.Lock()
	defer mu.Unlock()
	dir = d
}

// Dir returns the directory Path resolves against.
func Dir() string {
	mu.RLock()
	defer mu.RUnlock()
	return dir
}

// Path resolves a resource file name such as "image.png".
// Absolute paths are returned unchanged.
func Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(Dir(), name)
}
