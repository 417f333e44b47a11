package testing

import (
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCopyTests executes CopyFrom tests.
func (suite *BackendTestSuite) RunCopyTests(t *testing.T) {
	t.Run("File", suite.testCopyFile)
	t.Run("File_CarriesProperties", suite.testCopyProperties)
	t.Run("Directory", suite.testCopyDirectory)
	t.Run("Directory_DepthLimited", suite.testCopyDirectoryDepth)
}

func (suite *BackendTestSuite) testCopyFile(t *testing.T) {
	root := suite.NewRoot(t)
	src := mustChild(t, root, "src.txt", resource.TypeFile)
	mustWrite(t, src, []byte("payload"))
	dst := mustDescendant(t, root, "out/dst.txt", resource.TypeFile)

	_, err := dst.CopyFrom(testContext(), src, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte("payload"), mustRead(t, dst))
}

func (suite *BackendTestSuite) testCopyProperties(t *testing.T) {
	root := suite.NewRoot(t)
	src := mustChild(t, root, "src.txt", resource.TypeFile)
	mustWrite(t, src, []byte("payload"))
	src = src.WithName("Source").WithMimeType("text/x-custom").WithAttribute("k", "v")
	dst := mustChild(t, root, "dst.txt", resource.TypeFile).WithAttribute("own", "1")

	out, err := dst.CopyFrom(testContext(), src, 0)
	require.NoError(t, err)

	assert.Equal(t, "Source", out.Name())
	mt, err := out.MimeType(testContext())
	require.NoError(t, err)
	assert.Equal(t, "text/x-custom", mt)
	v, ok := out.Attribute("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok = out.Attribute("own")
	assert.True(t, ok)

	_, ok = dst.Attribute("k")
	assert.False(t, ok, "CopyFrom must not modify the receiver")
}

func (suite *BackendTestSuite) testCopyDirectory(t *testing.T) {
	root := suite.NewRoot(t)
	src := mustChild(t, root, "src", resource.TypeDirectory)
	mustMkdir(t, src)
	buildTree(t, src)
	dst := mustChild(t, root, "dst", resource.TypeDirectory)

	_, err := dst.CopyFrom(testContext(), src, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte("a"), mustRead(t, mustDescendant(t, dst, "a.txt", resource.TypeFile)))
	assert.Equal(t, []byte("bb"), mustRead(t, mustDescendant(t, dst, "sub/b.txt", resource.TypeFile)))
	assert.Equal(t, []byte("ccc"), mustRead(t, mustDescendant(t, dst, "sub/deep/c.txt", resource.TypeFile)))
}

func (suite *BackendTestSuite) testCopyDirectoryDepth(t *testing.T) {
	root := suite.NewRoot(t)
	src := mustChild(t, root, "src", resource.TypeDirectory)
	mustMkdir(t, src)
	buildTree(t, src)
	dst := mustChild(t, root, "dst", resource.TypeDirectory)

	_, err := dst.CopyFrom(testContext(), src, 1)
	require.NoError(t, err)

	assertExists(t, mustDescendant(t, dst, "a.txt", resource.TypeFile), true)
	assertExists(t, mustDescendant(t, dst, "sub/b.txt", resource.TypeFile), false)
}
