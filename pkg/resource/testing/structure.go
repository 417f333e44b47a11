package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStructureTests executes create/delete/list/walk tests.
func (suite *BackendTestSuite) RunStructureTests(t *testing.T) {
	t.Run("Create_File", suite.testCreateFile)
	t.Run("Create_Idempotent", suite.testCreateIdempotent)
	t.Run("Create_Directory", suite.testCreateDirectory)
	t.Run("Delete_File", suite.testDeleteFile)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("Delete_DirectoryRecursive", suite.testDeleteRecursive)
	t.Run("Empty", suite.testEmpty)
	t.Run("List_MatchesWalkDepthOne", suite.testListMatchesWalk)
	t.Run("Walk_Depth", suite.testWalkDepth)
	t.Run("Walk_Stop", suite.testWalkStop)
	t.Run("Parent", suite.testParent)
}

// buildTree creates:
//
//	a.txt
//	sub/b.txt
//	sub/deep/c.txt
func buildTree(t *testing.T, root *resource.Resource) {
	t.Helper()
	mustWrite(t, mustDescendant(t, root, "a.txt", resource.TypeFile), []byte("a"))
	mustWrite(t, mustDescendant(t, root, "sub/b.txt", resource.TypeFile), []byte("bb"))
	mustWrite(t, mustDescendant(t, root, "sub/deep/c.txt", resource.TypeFile), []byte("ccc"))
}

func (suite *BackendTestSuite) testCreateFile(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "created.txt", resource.TypeFile)

	require.NoError(t, r.Create(testContext()))

	assertExists(t, r, true)
	n, err := r.Length(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func (suite *BackendTestSuite) testCreateIdempotent(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "keep.txt", resource.TypeFile)
	mustWrite(t, r, []byte("keep me"))

	require.NoError(t, r.Create(testContext()))

	assert.Equal(t, []byte("keep me"), mustRead(t, r))
}

func (suite *BackendTestSuite) testCreateDirectory(t *testing.T) {
	dir := mustDescendant(t, suite.NewRoot(t), "x/y", resource.TypeDirectory)

	require.NoError(t, dir.Create(testContext()))

	assertExists(t, dir, !suite.LogicalDirectories)
	assert.True(t, dir.IsDirectory(testContext()))
	assert.Empty(t, childNames(t, dir))
}

func (suite *BackendTestSuite) testDeleteFile(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "doomed.txt", resource.TypeFile)
	mustWrite(t, r, []byte("bye"))

	require.NoError(t, r.Delete(testContext()))

	assertExists(t, r, false)
	_, err := r.ReadAllRaw(testContext())
	AssertErrorIs(t, resource.ErrNotFound, err)
}

func (suite *BackendTestSuite) testDeleteMissing(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "never.txt", resource.TypeFile)

	require.NoError(t, r.Delete(testContext()))
	require.NoError(t, r.Delete(testContext()))
}

func (suite *BackendTestSuite) testDeleteRecursive(t *testing.T) {
	root := suite.NewRoot(t)
	buildTree(t, root)
	sub := mustChild(t, root, "sub", resource.TypeDirectory)

	require.NoError(t, sub.Delete(testContext()))

	assertExists(t, sub, false)
	assertExists(t, mustDescendant(t, root, "sub/deep/c.txt", resource.TypeFile), false)
	assert.Equal(t, []string{"a.txt"}, childNames(t, root))
}

func (suite *BackendTestSuite) testEmpty(t *testing.T) {
	root := suite.NewRoot(t)
	dir := mustChild(t, root, "tree", resource.TypeDirectory)
	mustMkdir(t, dir)
	buildTree(t, dir)

	require.NoError(t, dir.Empty(testContext()))

	assertExists(t, dir, !suite.LogicalDirectories)
	assert.Empty(t, childNames(t, dir))
}

func (suite *BackendTestSuite) testListMatchesWalk(t *testing.T) {
	root := suite.NewRoot(t)
	buildTree(t, root)

	var walked []string
	_, err := root.Walk(testContext(), func(_ context.Context, r *resource.Resource, depth int) (bool, error) {
		assert.Equal(t, 1, depth)
		walked = append(walked, r.FileName())
		return true, nil
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "sub"}, childNames(t, root))
	assert.Equal(t, childNames(t, root), walked)
}

func (suite *BackendTestSuite) testWalkDepth(t *testing.T) {
	root := suite.NewRoot(t)
	buildTree(t, root)

	collect := func(maxDepth int) (map[string]int, bool) {
		seen := make(map[string]int)
		complete, err := root.Walk(testContext(), func(_ context.Context, r *resource.Resource, depth int) (bool, error) {
			seen[r.RelativePath(root)] = depth
			return true, nil
		}, maxDepth)
		require.NoError(t, err)
		return seen, complete
	}

	seen, complete := collect(1)
	assert.False(t, complete)
	assert.Equal(t, map[string]int{"a.txt": 1, "sub": 1}, seen)

	seen, complete = collect(2)
	assert.False(t, complete)
	assert.Equal(t, map[string]int{"a.txt": 1, "sub": 1, "sub/b.txt": 2, "sub/deep": 2}, seen)

	seen, complete = collect(0)
	assert.True(t, complete)
	assert.Equal(t, 3, seen["sub/deep/c.txt"])
	assert.Len(t, seen, 5)
}

func (suite *BackendTestSuite) testWalkStop(t *testing.T) {
	root := suite.NewRoot(t)
	buildTree(t, root)

	visits := 0
	complete, err := root.Walk(testContext(), func(context.Context, *resource.Resource, int) (bool, error) {
		visits++
		return false, nil
	}, 0)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, visits)

	file := mustChild(t, root, "a.txt", resource.TypeFile)
	complete, err = file.Walk(testContext(), func(context.Context, *resource.Resource, int) (bool, error) {
		t.Fatal("walking a file must not visit anything")
		return false, nil
	}, 0)
	require.NoError(t, err)
	assert.True(t, complete)
}

func (suite *BackendTestSuite) testParent(t *testing.T) {
	root := suite.NewRoot(t)
	r := mustDescendant(t, root, "p/q.txt", resource.TypeFile)

	parent := r.Parent()
	require.NotNil(t, parent)
	assert.Equal(t, "p", parent.FileName())
	assert.Equal(t, "p/q.txt", r.RelativePath(root))
}
