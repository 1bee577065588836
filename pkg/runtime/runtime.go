// Package runtime wires C1-C6 into a single top-level value constructed
// once at program start, per spec §9's guidance to avoid hidden global
// state: "model these as an explicit Runtime value... threaded through
// request handlers... Resolve these as non-owning back-references to a
// single top-level Runtime; the Runtime exclusively owns all subsystems."
// pkg/api's handlers and cmd/governor/main.go both hold only a *Runtime.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/governor/pkg/atlas"
	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/config"
	"github.com/codeready-toolchain/governor/pkg/executor"
	"github.com/codeready-toolchain/governor/pkg/policy"
	"github.com/codeready-toolchain/governor/pkg/resolver"
	"github.com/codeready-toolchain/governor/pkg/session"
	"github.com/codeready-toolchain/governor/pkg/storage"
	"github.com/codeready-toolchain/governor/pkg/storage/pgstore"
)

// Runtime owns every subsystem exclusively; every other package holds only
// non-owning back-references into it (resolver.Resolver and
// executor.Executor already follow this shape internally).
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Bus      *bus.Bus
	Atlases  *atlas.Registry
	Policies *policy.Engine
	Sessions *session.Manager
	Resolver *resolver.Resolver
	Executor *executor.Executor
	Store    storage.Store

	pgStore *pgstore.Store
}

// New constructs a Runtime from cfg: builds the bus, atlas registry, policy
// engine, session manager, resolver, and executor in dependency order,
// loads every configured atlas directory, and — if cfg.Storage.Driver is
// "postgres" — opens the durable pgstore backend and installs it as the
// mirror for the bus, session manager, and executor.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Bus:      bus.New(logger),
		Atlases:  atlas.NewRegistry(),
		Policies: policy.NewEngine(),
	}
	r.Sessions = session.NewManager(r.Bus)
	r.Bus.SetSessionObserver(r.Sessions.IncrementEventCount)
	r.Executor = executor.New(r.Bus, r.Sessions, logger)
	r.Resolver = resolver.New(r.Sessions, r.Policies, r.Atlases, r.Bus)

	if err := r.loadAtlases(cfg.Atlas.Dirs); err != nil {
		return nil, err
	}

	switch cfg.Storage.Driver {
	case "postgres":
		if err := r.openPostgres(ctx); err != nil {
			return nil, err
		}
	default:
		r.openMemory()
	}

	r.startRetentionLoop(ctx, cfg.Retention)

	return r, nil
}

// startRetentionLoop runs session table cleanup on retention.CleanupInterval
// until ctx is done, purging Ended/Expired sessions older than
// retention.SessionRetentionDays from the in-memory hot path (spec §3
// counters/lifecycle live there; pruning them is this loop's whole job —
// it never touches a durable store, which retains its own history).
func (r *Runtime) startRetentionLoop(ctx context.Context, retention config.RetentionConfig) {
	if retention.CleanupInterval <= 0 {
		return
	}
	maxAge := time.Duration(retention.SessionRetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(retention.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sessions.PurgeEnded(maxAge); n > 0 {
					r.Logger.Info("runtime: purged retained sessions", "count", n)
				}
			}
		}
	}()
}

func (r *Runtime) openMemory() {
	store := storage.NewMemoryStore()
	r.Store = store
	r.Bus.SetSink(store)
	r.Sessions.SetStore(store)
	r.Executor.SetStores(store, store)
}

// loadAtlases loads every configured atlas directory and mounts each
// atlas's policy-file rules into the shared Policy Engine — spec §4.2's
// "policy rules inside an Atlas are treated as rule definitions to be
// mounted into the Policy Engine on demand", applied here at load time
// since that is the one point every atlas is guaranteed to pass through.
func (r *Runtime) loadAtlases(dirs []string) error {
	for _, dir := range dirs {
		a, err := r.Atlases.Load(dir)
		if err != nil {
			return err
		}
		r.Logger.Info("runtime: loaded atlas", "atlas_id", a.Manifest.ID, "dir", dir)

		for _, pf := range a.PolicyFiles {
			rules, err := atlas.RulesFromPolicyFile(pf)
			if err != nil {
				return err
			}
			r.Policies.Mount(rules...)
			r.Logger.Info("runtime: mounted atlas policy rules", "atlas_id", a.Manifest.ID, "policy_file", pf.ID, "rules", len(rules))
		}
	}
	return nil
}

func (r *Runtime) openPostgres(ctx context.Context) error {
	dbCfg, err := pgstore.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	store, err := pgstore.Open(ctx, dbCfg)
	if err != nil {
		return err
	}
	r.pgStore = store
	r.Store = store
	r.Bus.SetSink(store)
	r.Sessions.SetStore(store)
	r.Executor.SetStores(store, store)
	r.Logger.Info("runtime: durable storage enabled", "driver", "postgres")
	return nil
}

// Close releases any resources the Runtime opened (currently only a
// postgres connection pool, when configured).
func (r *Runtime) Close() error {
	if r.pgStore != nil {
		return r.pgStore.Close()
	}
	return nil
}
