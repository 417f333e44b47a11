package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
)

// BackendTestSuite is a conformance suite for writable, hierarchical
// backends. It exercises the resource contract through the public
// Resource API only, so it runs unchanged against local, memory and kv.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &restesting.BackendTestSuite{
//	        NewRoot: func(t *testing.T) *resource.Resource {
//	            return mybackend.New(t.TempDir()).Root()
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// NewRoot returns an existing, empty directory resource. It is called
	// once per test so tests never see each other's files.
	NewRoot func(t *testing.T) *resource.Resource

	// SkipModTime disables mtime assertions for backends with coarse or
	// absent modification times.
	SkipModTime bool

	// LogicalDirectories marks backends without physical directories: an
	// empty directory does not exist.
	LogicalDirectories bool
}

// Run executes all tests in the suite.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("Streams", suite.RunStreamTests)
	t.Run("Structure", suite.RunStructureTests)
	t.Run("Copy", suite.RunCopyTests)
	t.Run("Identity", suite.RunIdentityTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
