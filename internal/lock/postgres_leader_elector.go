package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// PostgresLeaderElector holds a session level advisory lock on a dedicated
// connection. Whoever holds the lock leads; losing the connection loses it.
type PostgresLeaderElector struct {
	db     *sql.DB
	lockID int
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn *sql.Conn
}

func NewPostgresLeaderElector(db *sql.DB, lockID int, logger *zap.SugaredLogger) *PostgresLeaderElector {
	return &PostgresLeaderElector{
		db:     db,
		lockID: lockID,
		logger: logger,
	}
}

func (l *PostgresLeaderElector) IsControllingLeader(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		err := l.conn.PingContext(ctx)
		if err == nil {
			return true
		}
		l.logger.Warnw("Lost leadership connection", "lock", l.lockID, "error", err)
		_ = l.conn.Close()
		l.conn = nil
	}

	acquired, err := l.tryAcquire(ctx)
	if err != nil {
		l.logger.Errorw("Leader election failed", "lock", l.lockID, "error", err)
		return false
	}
	return acquired
}

func (l *PostgresLeaderElector) tryAcquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.conn = conn
	l.logger.Infow("Acquired leadership", "lock", l.lockID)
	return true, nil
}

func (l *PostgresLeaderElector) Resign(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	defer func() {
		_ = l.conn.Close()
		l.conn = nil
	}()

	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.logger.Infow("Resigned leadership", "lock", l.lockID)
	return nil
}
