package bus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportLoadManifestRoundTrip(t *testing.T) {
	b := New(nil)
	_, err := b.Emit("trace.a", "trace-1", "s", map[string]any{"k": "v"}, EmitOptions{})
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	m, err := b.ExportManifest("trace-1", path, "happy-path", "desc", []string{"smoke"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.ExpectedEventCount)

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m.TraceID, loaded.TraceID)
	assert.Equal(t, m.ExpectedEventCount, loaded.ExpectedEventCount)
	assert.Equal(t, m.ExpectedEvents[0].EventType, loaded.ExpectedEvents[0].EventType)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCompareIdenticalRunsSucceedsWithDefaultRules(t *testing.T) {
	b1 := New(nil)
	_, err := b1.Emit("trace.a", "trace-1", "s", map[string]any{"k": "v"}, EmitOptions{})
	require.NoError(t, err)
	expected, _, err := b1.GetEvents("trace-1", Filters{}, 0, 0)
	require.NoError(t, err)

	b2 := New(nil)
	_, err = b2.Emit("trace.a", "trace-1", "s", map[string]any{"k": "v"}, EmitOptions{})
	require.NoError(t, err)
	actual, _, err := b2.GetEvents("trace-1", Filters{}, 0, 0)
	require.NoError(t, err)

	result := Compare(expected, actual, DefaultRules())
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.MatchedEvents)
	assert.Empty(t, result.Differences)
}

func TestCompareExtraEventFails(t *testing.T) {
	b := New(nil)
	_, err := b.Emit("trace.a", "trace-1", "s", nil, EmitOptions{})
	require.NoError(t, err)
	expected, _, err := b.GetEvents("trace-1", Filters{}, 0, 0)
	require.NoError(t, err)

	_, err = b.Emit("trace.unexpected", "trace-1", "s", nil, EmitOptions{})
	require.NoError(t, err)
	actual, _, err := b.GetEvents("trace-1", Filters{}, 0, 0)
	require.NoError(t, err)

	result := Compare(expected, actual, DefaultRules())
	assert.False(t, result.Success)
	require.NotEmpty(t, result.Differences)
	assert.Equal(t, 1, result.Differences[0].EventIndex)
}
