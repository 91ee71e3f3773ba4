package locks

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"gorm.io/gorm"
)

// DatabaseLocker uses session-level advisory locks so that several gateway
// instances sharing one database serialize on the same keys.
//
// All keys of one Lock call are held on a single pooled connection. Waiters
// poll with a try-lock and hand their connection back between attempts,
// and at most half the pool can be pinned by held locks, so the holder
// always finds a connection for its own queries.
type DatabaseLocker struct {
	sqlDB   *sql.DB
	dialect string
	slots   chan struct{}
	minPoll time.Duration
	maxPoll time.Duration
}

func NewDatabaseLocker(db *gorm.DB) (*DatabaseLocker, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}

	held := sqlDB.Stats().MaxOpenConnections / 2
	if sqlDB.Stats().MaxOpenConnections == 0 {
		held = 64
	}
	if held < 1 {
		held = 1
	}

	return &DatabaseLocker{
		sqlDB:   sqlDB,
		dialect: db.Dialector.Name(),
		slots:   make(chan struct{}, held),
		minPoll: 5 * time.Millisecond,
		maxPoll: 100 * time.Millisecond,
	}, nil
}

func (l *DatabaseLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	if l.dialect != "postgres" && l.dialect != "mysql" {
		return nil, fmt.Errorf("advisory locks not supported on %s", l.dialect)
	}

	wait := l.minPoll
	for {
		conn, ok, err := l.try(ctx, keys)
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					l.release(conn, keys)
					<-l.slots
				})
			}, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > l.maxPoll {
			wait = l.maxPoll
		}
	}
}

// try makes one attempt at every key. On success the connection and its
// slot stay taken until release.
func (l *DatabaseLocker) try(ctx context.Context, keys []string) (*sql.Conn, bool, error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	conn, err := l.sqlDB.Conn(ctx)
	if err != nil {
		<-l.slots
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	for i, key := range keys {
		got, err := l.tryKey(ctx, conn, key)
		if err != nil || !got {
			l.release(conn, keys[:i])
			<-l.slots
			return nil, false, err
		}
	}
	return conn, true, nil
}

func (l *DatabaseLocker) tryKey(ctx context.Context, conn *sql.Conn, key string) (bool, error) {
	if l.dialect == "postgres" {
		var got bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryKey(key)).Scan(&got); err != nil {
			return false, fmt.Errorf("pg_try_advisory_lock %s: %w", key, err)
		}
		return got, nil
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", mysqlName(key)).Scan(&got); err != nil {
		return false, fmt.Errorf("GET_LOCK %s: %w", key, err)
	}
	return got.Valid && got.Int64 == 1, nil
}

// release unlocks keys in reverse order and returns conn to the pool. A
// connection that may still hold a lock is discarded instead.
func (l *DatabaseLocker) release(conn *sql.Conn, keys []string) {
	// The caller's context may already be done; unlocking must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clean := true
	for i := len(keys) - 1; i >= 0; i-- {
		if !l.unlockKey(ctx, conn, keys[i]) {
			clean = false
		}
	}

	if !clean {
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = conn.Close()
}

func (l *DatabaseLocker) unlockKey(ctx context.Context, conn *sql.Conn, key string) bool {
	if l.dialect == "postgres" {
		var released bool
		err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryKey(key)).Scan(&released)
		return err == nil && released
	}

	var released sql.NullInt64
	err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", mysqlName(key)).Scan(&released)
	return err == nil && released.Valid && released.Int64 == 1
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// mysqlName keeps lock names under MySQL's 64 character limit.
func mysqlName(key string) string {
	return fmt.Sprintf("i8gw:%016x", uint64(advisoryKey(key)))
}
