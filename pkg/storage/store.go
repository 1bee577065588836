// Package storage defines the durability boundary for the governance
// runtime. Sessions, grants, executions, and trace events all live primarily
// in the in-process maps owned by pkg/session, pkg/executor, and pkg/bus —
// those are the hot path spec §5 reasons about. Store is the optional mirror
// a Runtime can attach to each of them so state survives a restart, the way
// a database client backs the services' in-memory state
// with Postgres. This package ships the interfaces plus an in-memory
// implementation useful for tests and for running without a database
// configured at all; pkg/storage/pgstore supplies the durable pgx/migrate
// backend.
package storage

import (
	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/model"
	"github.com/codeready-toolchain/governor/pkg/session"
)

// Store aggregates every durable mirror a Runtime can wire: bus.Sink for
// trace events, session.Store for session lifecycle, and
// executor.GrantStore/ExecutionStore for the grant and execution ledgers.
// A concrete Store need not be installed everywhere a Runtime accepts one —
// pkg/runtime wires whichever of these the caller configured.
type Store interface {
	bus.Sink
	session.Store
	PutGrant(g model.Grant) error
	PutExecution(e model.Execution) error
}
