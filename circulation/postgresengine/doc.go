// Package postgresengine provides the PostgreSQL implementation of the circulation engine.
//
// The Engine performs every state transition (borrow, return, add copies) in exactly one
// READ COMMITTED transaction that is committed or rolled back before the call returns.
// Correctness under concurrent callers comes from row locks and constraints, never from
// in-process mutexes:
//
//   - A borrow by book picks the lowest free copy with FOR UPDATE SKIP LOCKED, so concurrent
//     borrowers of the same book never wait on each other's candidate copy.
//   - A borrow by copy locks that copy with FOR UPDATE and re-checks its status.
//   - A partial unique index allows at most one open loan per copy and turns any residual
//     race into circulation.ErrConflict.
//   - The available_copies counter is changed in the same transaction as the loan and only
//     inside [0, total_copies].
//   - Lock waits are bounded by SET LOCAL lock_timeout and surface as circulation.ErrBusy.
//
// Locks are always taken in the order loan, copy, book, so two transitions never wait on each other in a cycle.
//
// The engine can be created from a pgxpool.Pool, a sql.DB (lib/pq) or a sqlx.DB:
//
//	engine, err := postgresengine.NewEngineFromPGXPool(pool,
//		postgresengine.WithLogger(slog.Default()),
//		postgresengine.WithLockTimeout(2*time.Second),
//	)
//
//	loan, err := engine.Borrow(ctx, memberID, circulation.BookTarget(bookID))
package postgresengine
