package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "autopost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AcquireLock relies on a single conditional upsert so the create-if-absent
// check and the write are one atomic statement.
func (s *sqliteStore) AcquireLock(ctx context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	nowMS := now.UnixMilli()
	expMS := now.Add(ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks(key, token, acquired_at, expires_at) VALUES(?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET
		   token = excluded.token,
		   acquired_at = excluded.acquired_at,
		   expires_at = excluded.expires_at
		 WHERE locks.expires_at <= ?`,
		key, token, nowMS, expMS, nowMS,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ReleaseLock(ctx context.Context, key, token string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	// Token mismatch deletes nothing, which is exactly the wanted no-op.
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE key = ? AND token = ?`, key, token)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, ms,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.pruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) GetSchedule(ctx context.Context, channelID string) (ScheduleState, bool, error) {
	if s == nil || s.db == nil {
		return ScheduleState{}, false, ErrDisabled
	}
	var last, next sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_execution_at, next_execution_at FROM schedule WHERE channel_id = ?`,
		channelID,
	).Scan(&last, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleState{}, false, nil
	}
	if err != nil {
		return ScheduleState{}, false, err
	}
	st := ScheduleState{ChannelID: channelID}
	if last.Valid {
		st.LastExecutionAt = time.UnixMilli(last.Int64)
	}
	if next.Valid {
		st.NextExecutionAt = time.UnixMilli(next.Int64)
	}
	return st, true, nil
}

func (s *sqliteStore) PutSchedule(ctx context.Context, st ScheduleState) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule(channel_id, last_execution_at, next_execution_at) VALUES(?,?,?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   last_execution_at = excluded.last_execution_at,
		   next_execution_at = excluded.next_execution_at`,
		st.ChannelID, nullMilli(st.LastExecutionAt), nullMilli(st.NextExecutionAt),
	)
	return err
}

func (s *sqliteStore) GetQuota(ctx context.Context, provider string) (QuotaState, bool, error) {
	if s == nil || s.db == nil {
		return QuotaState{}, false, ErrDisabled
	}
	var (
		window   int64
		count    int
		exceeded sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT window_start, request_count, quota_exceeded_at FROM quota WHERE provider = ?`,
		provider,
	).Scan(&window, &count, &exceeded)
	if errors.Is(err, sql.ErrNoRows) {
		return QuotaState{}, false, nil
	}
	if err != nil {
		return QuotaState{}, false, err
	}
	st := QuotaState{Provider: provider, WindowStart: time.UnixMilli(window), RequestCount: count}
	if exceeded.Valid {
		st.QuotaExceededAt = time.UnixMilli(exceeded.Int64)
	}
	return st, true, nil
}

func (s *sqliteStore) PutQuota(ctx context.Context, st QuotaState) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota(provider, window_start, request_count, quota_exceeded_at) VALUES(?,?,?,?)
		 ON CONFLICT(provider) DO UPDATE SET
		   window_start = excluded.window_start,
		   request_count = excluded.request_count,
		   quota_exceeded_at = excluded.quota_exceeded_at`,
		st.Provider, st.WindowStart.UnixMilli(), st.RequestCount, nullMilli(st.QuotaExceededAt),
	)
	return err
}

func (s *sqliteStore) PutJob(ctx context.Context, rec JobRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(job_id, channel_id, status, message, posts_created, created_at, expires_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   status = excluded.status,
		   message = excluded.message,
		   posts_created = excluded.posts_created,
		   expires_at = excluded.expires_at`,
		rec.JobID, rec.ChannelID, string(rec.Status), rec.Message, rec.PostsCreated,
		rec.CreatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetJob(ctx context.Context, jobID string) (JobRecord, bool, error) {
	if s == nil || s.db == nil {
		return JobRecord{}, false, ErrDisabled
	}
	var (
		rec             JobRecord
		status          string
		created, expire int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, channel_id, status, message, posts_created, created_at, expires_at
		 FROM jobs WHERE job_id = ?`, jobID,
	).Scan(&rec.JobID, &rec.ChannelID, &status, &rec.Message, &rec.PostsCreated, &created, &expire)
	if errors.Is(err, sql.ErrNoRows) {
		return JobRecord{}, false, nil
	}
	if err != nil {
		return JobRecord{}, false, err
	}
	rec.Status = JobStatus(status)
	rec.CreatedAt = time.UnixMilli(created)
	rec.ExpiresAt = time.UnixMilli(expire)
	return rec, true, nil
}

func (s *sqliteStore) PruneJobs(ctx context.Context, before time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE expires_at < ?`, before.UnixMilli())
	return err
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now)
	return err
}

func nullMilli(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
