package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/governor/pkg/config"
	"github.com/codeready-toolchain/governor/pkg/session"
	"github.com/codeready-toolchain/governor/pkg/storage"
)

func TestNewWiresMemoryStoreByDefault(t *testing.T) {
	cfg := config.Default()
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	_, ok := r.Store.(*storage.MemoryStore)
	require.True(t, ok, "default storage driver should wire an in-memory mirror")

	sess, err := r.Sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, []string{"read"}, 60)
	require.NoError(t, err)

	mem := r.Store.(*storage.MemoryStore)
	mirrored, ok := mem.Session(sess.SessionID)
	require.True(t, ok, "session creation must mirror into the durable store")
	assert.Equal(t, sess.SessionID, mirrored.SessionID)
}

func TestNewWiresSessionObserverForTotalEvents(t *testing.T) {
	cfg := config.Default()
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	sess, err := r.Sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, []string{"read"}, 60)
	require.NoError(t, err)

	got, err := r.Sessions.Get(sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Counters.TotalEvents, "session.started should bump total_events via the bus observer")
}

func TestNewRejectsUnknownAtlasDir(t *testing.T) {
	cfg := config.Default()
	cfg.Atlas.Dirs = []string{"/nonexistent/atlas/dir"}
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewWithPostgresDriverRequiresDBConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "postgres"
	t.Setenv("GOVERNOR_DB_PASSWORD", "")
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err, "postgres driver without GOVERNOR_DB_PASSWORD must fail fast rather than silently fall back")
}
