package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Locks wraps Postgres advisory locks keyed by a scope string, used for
// the non-blocking cooperative locks spec.md §4.1/§5 requires:
// "source:<uuid>", "media:<uuid>", "index_media:<uuid>", and global names
// such as "save_all_media_for_source".
type Locks struct {
	db *sql.DB
}

// NewLocks constructs a Locks helper over db.
func NewLocks(db *sql.DB) *Locks {
	return &Locks{db: db}
}

// Lock is a held advisory lock. Call Release to free it. The zero value
// with held=false means acquisition failed because another worker holds
// the same scope.
type Lock struct {
	conn  *sql.Conn
	scope string
	held  bool
}

// Held reports whether the lock was actually acquired.
func (l *Lock) Held() bool {
	return l != nil && l.held
}

// Release returns the advisory lock and closes the dedicated connection
// it was taken on. Safe to call on a lock that was never held.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || !l.held {
		return nil
	}
	defer l.conn.Close()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", l.scope)
	return err
}

// TryAcquire attempts a non-blocking advisory lock for scope (e.g.
// "source:"+id.String()). It never blocks: if the lock is already held
// elsewhere, it returns a Lock with Held()==false and no error.
//
// A dedicated *sql.Conn is checked out for the lifetime of the lock,
// because Postgres session-level advisory locks are tied to the backend
// connection that took them — releasing from a different connection is a
// no-op, so the pool must not recycle this connection underneath us.
func (l *Locks) TryAcquire(ctx context.Context, scope string) (*Lock, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock %q: acquire conn: %w", scope, err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", scope).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock %q: %w", scope, err)
	}
	if !ok {
		conn.Close()
		return &Lock{scope: scope, held: false}, nil
	}
	return &Lock{conn: conn, scope: scope, held: true}, nil
}

// SourceScope returns the advisory lock scope for a Source id.
func SourceScope(id string) string { return "source:" + id }

// MediaScope returns the advisory lock scope for a Media id.
func MediaScope(id string) string { return "media:" + id }

// IndexMediaScope returns the advisory lock scope held by the Indexer
// while it rewrites a Media's Metadata/Format rows.
func IndexMediaScope(id string) string { return "index_media:" + id }

// GlobalScope names a non-entity-keyed lock, e.g. "save_all_media_for_source".
func GlobalScope(name string) string { return "global:" + name }
