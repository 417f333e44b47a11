package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustChild returns the named child of parent and fails the test on error.
func mustChild(t *testing.T, parent *resource.Resource, name string, typ resource.Type) *resource.Resource {
	t.Helper()
	child, err := parent.Child(testContext(), name, typ)
	require.NoError(t, err, "Child should succeed")
	return child
}

// mustDescendant resolves rel below parent and fails the test on error.
func mustDescendant(t *testing.T, parent *resource.Resource, rel string, typ resource.Type) *resource.Resource {
	t.Helper()
	d, err := parent.Descendant(testContext(), rel, typ)
	require.NoError(t, err, "Descendant should succeed")
	return d
}

// mustWrite replaces the content of r and fails the test if it errors.
func mustWrite(t *testing.T, r *resource.Resource, data []byte) {
	t.Helper()
	require.NoError(t, r.CreateParents(testContext()), "CreateParents should succeed")
	require.NoError(t, r.WriteBytes(testContext(), data), "WriteBytes should succeed")
}

// mustRead reads the raw content of r and fails the test if it errors.
func mustRead(t *testing.T, r *resource.Resource) []byte {
	t.Helper()
	data, err := r.ReadAllRaw(testContext())
	require.NoError(t, err, "ReadAllRaw should succeed")
	return data
}

// mustMkdir creates a directory and fails the test if it errors.
func mustMkdir(t *testing.T, r *resource.Resource) {
	t.Helper()
	require.NoError(t, r.CreateParents(testContext()), "CreateParents should succeed")
	require.NoError(t, r.Create(testContext()), "Create should succeed")
}

// assertExists checks resource existence.
func assertExists(t *testing.T, r *resource.Resource, expected bool) {
	t.Helper()
	exists, err := r.Exists(testContext())
	require.NoError(t, err, "Exists should not error")
	assert.Equal(t, expected, exists, "Existence mismatch for %s", r)
}

// childNames lists r and returns the children's file names.
func childNames(t *testing.T, r *resource.Resource) []string {
	t.Helper()
	children, err := r.List(testContext())
	require.NoError(t, err, "List should succeed")
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.FileName())
	}
	return names
}

// generateTestData creates test data of specified size.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(i % 256)
	}
	return data
}
