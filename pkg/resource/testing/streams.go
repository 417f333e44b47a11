package testing

import (
	"testing"
	"time"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStreamTests executes read/write and probe tests.
func (suite *BackendTestSuite) RunStreamTests(t *testing.T) {
	t.Run("Missing_ProbesAreEmpty", suite.testMissingProbes)
	t.Run("Missing_ReadFails", suite.testMissingRead)
	t.Run("RoundTrip", suite.testRoundTrip)
	t.Run("RoundTrip_Empty", suite.testRoundTripEmpty)
	t.Run("RoundTrip_Large", suite.testRoundTripLarge)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("Write_CreatesParents", suite.testWriteNested)
	t.Run("Directory_StreamsUnsupported", suite.testDirectoryStreams)
}

func (suite *BackendTestSuite) testMissingProbes(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "missing.bin", resource.TypeFile)

	assertExists(t, r, false)

	n, err := r.Length(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	mtime, err := r.LastModified(testContext())
	require.NoError(t, err)
	assert.True(t, mtime.IsZero())
}

func (suite *BackendTestSuite) testMissingRead(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "missing.bin", resource.TypeFile)

	_, err := r.ReadAllRaw(testContext())
	AssertErrorIs(t, resource.ErrNotFound, err)
}

func (suite *BackendTestSuite) testRoundTrip(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "hello.txt", resource.TypeFile)
	data := []byte("Hello, World!")

	before := time.Now().Add(-2 * time.Second)
	mustWrite(t, r, data)

	assertExists(t, r, true)
	assert.Equal(t, data, mustRead(t, r))

	n, err := r.Length(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	if !suite.SkipModTime {
		mtime, err := r.LastModified(testContext())
		require.NoError(t, err)
		assert.True(t, mtime.After(before), "mtime %v should be recent", mtime)
	}
}

func (suite *BackendTestSuite) testRoundTripEmpty(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "empty.bin", resource.TypeFile)

	mustWrite(t, r, []byte{})

	assertExists(t, r, true)
	assert.Empty(t, mustRead(t, r))
}

func (suite *BackendTestSuite) testRoundTripLarge(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "large.bin", resource.TypeFile)
	data := generateTestData(1024 * 1024)

	mustWrite(t, r, data)

	assert.Equal(t, data, mustRead(t, r))
	n, err := r.Length(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
}

func (suite *BackendTestSuite) testOverwrite(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "overwrite.txt", resource.TypeFile)

	mustWrite(t, r, []byte("first version, longer"))
	mustWrite(t, r, []byte("second"))

	assert.Equal(t, []byte("second"), mustRead(t, r))
}

func (suite *BackendTestSuite) testWriteNested(t *testing.T) {
	root := suite.NewRoot(t)
	r := mustDescendant(t, root, "a/b/c.txt", resource.TypeFile)

	mustWrite(t, r, []byte("nested"))

	assert.Equal(t, []byte("nested"), mustRead(t, r))
	a := mustChild(t, root, "a", resource.TypeDirectory)
	assertExists(t, a, true)
	assert.True(t, a.IsDirectory(testContext()))
}

func (suite *BackendTestSuite) testDirectoryStreams(t *testing.T) {
	dir := mustChild(t, suite.NewRoot(t), "dir", resource.TypeDirectory)
	mustMkdir(t, dir)

	_, err := dir.Reader(testContext(), true)
	AssertErrorIs(t, resource.ErrNotSupported, err)

	_, err = dir.Writer(testContext())
	AssertErrorIs(t, resource.ErrNotSupported, err)
}
