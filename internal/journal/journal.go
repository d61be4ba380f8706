// Package journal records one row per processed request in Postgres. It never
// stores media, captions or credentials.
package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetch_outcomes (
	request_id   TEXT PRIMARY KEY,
	provider     TEXT NOT NULL,
	status       TEXT NOT NULL,
	code         TEXT NOT NULL DEFAULT '',
	items        INT NOT NULL,
	delivered    INT NOT NULL,
	bytes        BIGINT NOT NULL DEFAULT 0,
	strategies   TEXT[] NOT NULL DEFAULT '{}',
	audio_only   BOOLEAN NOT NULL DEFAULT FALSE,
	admitted_at  TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS fetch_outcomes_recorded_at_idx ON fetch_outcomes (recorded_at);
`

// Request statuses stored in fetch_outcomes.status.
const (
	StatusDelivered = "delivered"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Entry is the row written for one request.
type Entry struct {
	RequestID  string
	Provider   string
	Status     string
	Code       string
	Items      int
	Delivered  int
	Bytes      int64
	Strategies []string
	AudioOnly  bool
	AdmittedAt time.Time
	Duration   time.Duration
}

// Summarize builds the journal entry of a processed request.
func Summarize(req media.FetchRequest, res media.Result) Entry {
	e := Entry{
		RequestID:  req.ID,
		Provider:   string(media.DetectProvider(req.SourceURL)),
		Items:      len(res.Outcomes),
		Delivered:  res.Count(media.StatusDelivered),
		Bytes:      res.Bytes(),
		Strategies: []string{},
		AudioOnly:  req.Options.AudioOnly,
		AdmittedAt: req.AdmittedAt,
		Duration:   res.Duration,
	}
	if e.Provider == "" {
		e.Provider = "unknown"
	}
	if e.AdmittedAt.IsZero() {
		e.AdmittedAt = time.Now()
	}

	switch {
	case e.Delivered == 0:
		e.Status = StatusFailed
	case e.Delivered < e.Items:
		e.Status = StatusPartial
	default:
		e.Status = StatusDelivered
	}
	if res.Err != nil {
		e.Code = string(errors.GetCode(res.Err))
	}

	seen := map[string]bool{}
	for _, o := range res.Outcomes {
		if o.Status == media.StatusDelivered && o.Strategy != "" && !seen[o.Strategy] {
			seen[o.Strategy] = true
			e.Strategies = append(e.Strategies, o.Strategy)
		}
	}
	return e
}

type Journal struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// Open connects to url, checks the connection and creates the table.
func Open(ctx context.Context, url string, log *logger.Logger) (*Journal, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "journal.open", "invalid postgres url")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapWithCode(err, errors.CodeTransient, "journal.open", "postgres unreachable")
	}
	j := New(pool, log)
	if err := j.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

func New(db *pgxpool.Pool, log *logger.Logger) *Journal {
	return &Journal{db: db, log: log.WithComponent("journal")}
}

func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "journal.migrate", "create fetch_outcomes")
	}
	return nil
}

// Record writes the request row. A repeated request ID is ignored.
func (j *Journal) Record(ctx context.Context, req media.FetchRequest, res media.Result) error {
	e := Summarize(req, res)
	err := j.insert(ctx, e)
	if IsUndefinedTable(err) {
		j.log.Warn("fetch_outcomes missing, recreating")
		if err := j.Migrate(ctx); err != nil {
			return err
		}
		err = j.insert(ctx, e)
	}
	if err != nil {
		return errors.Wrap(err, "journal.record", "insert fetch outcome")
	}
	return nil
}

func (j *Journal) insert(ctx context.Context, e Entry) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO fetch_outcomes
			(request_id, provider, status, code, items, delivered, bytes, strategies, audio_only, admitted_at, duration_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (request_id) DO NOTHING
	`,
		e.RequestID,
		e.Provider,
		e.Status,
		e.Code,
		e.Items,
		e.Delivered,
		e.Bytes,
		e.Strategies,
		e.AudioOnly,
		e.AdmittedAt,
		e.Duration.Milliseconds(),
	)
	return err
}

// Stats aggregates the rows recorded since a point in time.
type Stats struct {
	Since     time.Time        `json:"since"`
	Requests  int64            `json:"requests"`
	ByStatus  map[string]int64 `json:"by_status"`
	ByCode    map[string]int64 `json:"by_code"`
	Bytes     int64            `json:"bytes"`
	AvgMillis float64          `json:"avg_duration_ms"`
}

func (j *Journal) Stats(ctx context.Context, since time.Time) (Stats, error) {
	st := Stats{Since: since, ByStatus: map[string]int64{}, ByCode: map[string]int64{}}

	rows, err := j.db.Query(ctx, `
		SELECT status, code, COUNT(*), COALESCE(SUM(bytes), 0)::BIGINT, COALESCE(SUM(duration_ms), 0)::BIGINT
		FROM fetch_outcomes
		WHERE recorded_at >= $1
		GROUP BY status, code
	`, since)
	if err != nil {
		return st, errors.Wrap(err, "journal.stats", "query fetch outcomes")
	}
	defer rows.Close()

	var totalMillis int64
	for rows.Next() {
		var (
			status, code string
			n, bytes, ms int64
		)
		if err := rows.Scan(&status, &code, &n, &bytes, &ms); err != nil {
			return st, errors.Wrap(err, "journal.stats", "scan fetch outcomes")
		}
		st.Requests += n
		st.ByStatus[status] += n
		if code != "" {
			st.ByCode[code] += n
		}
		st.Bytes += bytes
		totalMillis += ms
	}
	if err := rows.Err(); err != nil {
		return st, errors.Wrap(err, "journal.stats", "read fetch outcomes")
	}
	if st.Requests > 0 {
		st.AvgMillis = float64(totalMillis) / float64(st.Requests)
	}
	return st, nil
}

// Pool exposes the connection pool for health checks.
func (j *Journal) Pool() *pgxpool.Pool { return j.db }

func (j *Journal) Close() { j.db.Close() }
