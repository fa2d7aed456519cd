package embed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareText_TrimsWhitespace(t *testing.T) {
	out, err := PrepareText("  выборы в парламенте начались сегодня  ")
	require.NoError(t, err)
	assert.Equal(t, "выборы в парламенте начались сегодня", out)
}

func TestPrepareText_RejectsShort(t *testing.T) {
	_, err := PrepareText("hi")
	assert.Error(t, err)

	_, err = PrepareText("         ")
	assert.Error(t, err)
}

func TestPrepareText_CapsLength(t *testing.T) {
	long := strings.Repeat("a", maxTextChars+500)
	out, err := PrepareText(long)
	require.NoError(t, err)
	assert.Len(t, out, maxTextChars)
}

func TestDefaultSpaces_DistinctTaskTypes(t *testing.T) {
	spaces := DefaultSpaces()
	require.Contains(t, spaces, SpaceSearch)
	require.Contains(t, spaces, SpaceClustering)
	assert.NotEqual(t, spaces[SpaceSearch].TaskType, spaces[SpaceClustering].TaskType)
}

func TestRegistry_UnknownSpace(t *testing.T) {
	r := NewRegistry("key", nil, nil)
	_, _, err := r.Embed(t.Context(), []string{"some text"}, Space("bogus"))
	assert.ErrorContains(t, err, "unknown embedding space")
}

func TestRegistry_EmptyBatch(t *testing.T) {
	r := NewRegistry("key", nil, nil)
	vectors, failed, err := r.Embed(t.Context(), nil, SpaceSearch)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Nil(t, failed)
}

func TestRegistry_MissingAPIKey(t *testing.T) {
	r := NewRegistry("", nil, nil)
	_, _, err := r.Embed(t.Context(), []string{"some text here"}, SpaceSearch)
	assert.ErrorContains(t, err, "API key")
}

func TestRegistry_ReleaseWithoutAcquire(t *testing.T) {
	r := NewRegistry("key", nil, nil)
	// Must not panic when nothing was ever created.
	r.Release()
	r.Release()
}
