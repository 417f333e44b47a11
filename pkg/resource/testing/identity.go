package testing

import (
	"testing"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunIdentityTests executes equality and hashing tests.
func (suite *BackendTestSuite) RunIdentityTests(t *testing.T) {
	t.Run("Equal_SamePath", suite.testEqualSamePath)
	t.Run("Hash_Deterministic", suite.testHashDeterministic)
	t.Run("Hash_ChangesWithAttributes", suite.testHashAttributes)
}

func (suite *BackendTestSuite) testEqualSamePath(t *testing.T) {
	root := suite.NewRoot(t)
	a := mustChild(t, root, "same.txt", resource.TypeFile)
	b := mustChild(t, root, "same.txt", resource.TypeFile)
	other := mustChild(t, root, "other.txt", resource.TypeFile)

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a.WithName("renamed")))
	assert.False(t, a.Equal(other))
}

func (suite *BackendTestSuite) testHashDeterministic(t *testing.T) {
	root := suite.NewRoot(t)
	a := mustChild(t, root, "h.txt", resource.TypeFile)
	b := mustChild(t, root, "h.txt", resource.TypeFile)

	ha, err := a.Hash(testContext())
	require.NoError(t, err)
	hb, err := b.Hash(testContext())
	require.NoError(t, err)

	assert.NotEmpty(t, ha)
	assert.Equal(t, ha, hb)
}

func (suite *BackendTestSuite) testHashAttributes(t *testing.T) {
	r := mustChild(t, suite.NewRoot(t), "h.txt", resource.TypeFile)

	base, err := r.Hash(testContext())
	require.NoError(t, err)

	withPath, err := r.WithAttribute(resource.AttrOriginalPath, "/elsewhere/h.txt").Hash(testContext())
	require.NoError(t, err)
	withExternal, err := r.WithAttribute(resource.AttrExternalHash, "abc123").Hash(testContext())
	require.NoError(t, err)

	assert.NotEqual(t, base, withPath)
	assert.NotEqual(t, base, withExternal)
	assert.NotEqual(t, withPath, withExternal)

	again, err := r.Hash(testContext())
	require.NoError(t, err)
	assert.Equal(t, base, again)
}
