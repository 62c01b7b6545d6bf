package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/crm-manual-rag/internal/db"
)

// Store records and aggregates questions.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Normalize lower-cases a question, collapses whitespace and drops question
// and exclamation marks, so repeats of a question group together.
func Normalize(query string) string {
	query = strings.NewReplacer("?", "", "!", "").Replace(strings.ToLower(query))
	return strings.Join(strings.Fields(query), " ")
}

// Record inserts an entry. The id and timestamp are filled in when empty.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.Query) == "" {
		return fmt.Errorf("recording query: empty query")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Normalized == "" {
		e.Normalized = Normalize(e.Query)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (
			id, timestamp, query, normalized, language, result_count, top_score, answered
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(time.DateTime),
		e.Query,
		e.Normalized,
		e.Language,
		e.ResultCount,
		e.TopScore,
		e.Answered,
	)
	if err != nil {
		return fmt.Errorf("inserting query history: %w", err)
	}
	return nil
}

// Filter controls which entries List returns.
type Filter struct {
	Language string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// List returns entries matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Language != "" {
		clauses = append(clauses, "language = ?")
		args = append(args, filter.Language)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}

	query := "SELECT id, timestamp, query, normalized, language, result_count, top_score, answered FROM query_history"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Query, &e.Normalized, &e.Language, &e.ResultCount, &e.TopScore, &e.Answered); err != nil {
			return nil, err
		}
		e.Timestamp = parseTimestamp(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Popular returns the n most asked questions. With an empty history the
// default suggestions are returned with a zero count.
func (s *Store) Popular(ctx context.Context, n int) ([]PopularQuery, error) {
	if n <= 0 {
		n = DefaultPopularLimit
	}
	top, err := s.top(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		return top, nil
	}

	out := make([]PopularQuery, 0, n)
	for _, q := range DefaultPopular {
		if len(out) == n {
			break
		}
		out = append(out, PopularQuery{Query: q})
	}
	return out, nil
}

func (s *Store) top(ctx context.Context, n int) ([]PopularQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(query), COUNT(*) AS n
		FROM query_history
		GROUP BY normalized
		ORDER BY n DESC, MAX(timestamp) DESC, normalized
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying popular questions: %w", err)
	}
	defer rows.Close()

	var out []PopularQuery
	for rows.Next() {
		var p PopularQuery
		if err := rows.Scan(&p.Query, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats summarises the whole history with the top 10 questions.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		LastUpdated: s.now().Format(time.DateTime),
		ByLanguage:  make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT normalized), COALESCE(SUM(answered), 0)
		FROM query_history`)
	if err := row.Scan(&st.TotalQueries, &st.UniqueQueries, &st.Answered); err != nil {
		return nil, fmt.Errorf("counting history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT language, COUNT(*) FROM query_history GROUP BY language")
	if err != nil {
		return nil, fmt.Errorf("counting languages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			lang string
			n    int
		)
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		st.ByLanguage[lang] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top, err := s.top(ctx, StatsTopLimit)
	if err != nil {
		return nil, err
	}
	st.TopQueries = top
	return st, nil
}

// DeleteBefore removes all entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM query_history WHERE timestamp < ?",
		before.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old history: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes entries older than the retention period, 30 days when
// retention is not positive.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return s.DeleteBefore(ctx, s.now().Add(-retention))
}

func parseTimestamp(ts string) time.Time {
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Time{}
}
