package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rent360_assistant/internal/learning"

	_ "modernc.org/sqlite"
)

const learningSchema = `
CREATE TABLE IF NOT EXISTS learning_patterns (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ngram       TEXT NOT NULL,
    pattern_key TEXT NOT NULL,
    successes   INTEGER NOT NULL DEFAULT 0,
    failures    INTEGER NOT NULL DEFAULT 0,
    last_used   INTEGER NOT NULL,
    UNIQUE(ngram, pattern_key)
);
CREATE INDEX IF NOT EXISTS idx_patterns_last_used ON learning_patterns(last_used);
CREATE TABLE IF NOT EXISTS length_preferences (
    user_id  TEXT NOT NULL,
    bucket   TEXT NOT NULL,
    score    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(user_id, bucket)
);
CREATE TABLE IF NOT EXISTS learning_questions (
    question  TEXT PRIMARY KEY,
    frequency INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS user_satisfaction (
    user_id TEXT PRIMARY KEY,
    total   INTEGER NOT NULL DEFAULT 0,
    ratings INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteLearningStore persists learning counters in SQLite
type SQLiteLearningStore struct {
	db *sql.DB
}

// OpenSQLiteLearningStore opens (or creates) the database at path
func OpenSQLiteLearningStore(path string) (*SQLiteLearningStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open learning database: %w", err)
	}
	// :memory: databases exist per connection
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteLearningStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteLearningStore creates the tables on db
func NewSQLiteLearningStore(db *sql.DB) (*SQLiteLearningStore, error) {
	if _, err := db.Exec(learningSchema); err != nil {
		return nil, fmt.Errorf("learning schema: %w", err)
	}
	return &SQLiteLearningStore{db: db}, nil
}

func (s *SQLiteLearningStore) RecordPattern(ctx context.Context, text, key string, success bool, at time.Time) error {
	successes, failures := 0, 1
	if success {
		successes, failures = 1, 0
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_patterns (ngram, pattern_key, successes, failures, last_used)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ngram, pattern_key) DO UPDATE SET
		   successes = learning_patterns.successes + excluded.successes,
		   failures = learning_patterns.failures + excluded.failures,
		   last_used = excluded.last_used`,
		text, key, successes, failures, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record pattern: %w", err)
	}
	return nil
}

func (s *SQLiteLearningStore) RecordLength(ctx context.Context, userID string, bucket learning.LengthBucket, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO length_preferences (user_id, bucket, score)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, bucket) DO UPDATE SET
		   score = length_preferences.score + excluded.score`,
		userID, string(bucket), delta,
	)
	if err != nil {
		return fmt.Errorf("record length: %w", err)
	}
	return nil
}

func (s *SQLiteLearningStore) RecordQuestion(ctx context.Context, question string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_questions (question, frequency)
		 VALUES (?, 1)
		 ON CONFLICT(question) DO UPDATE SET
		   frequency = learning_questions.frequency + 1`,
		question,
	)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

func (s *SQLiteLearningStore) RecordSatisfaction(ctx context.Context, userID string, score int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_satisfaction (user_id, total, ratings)
		 VALUES (?, ?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET
		   total = user_satisfaction.total + excluded.total,
		   ratings = user_satisfaction.ratings + 1`,
		userID, score,
	)
	if err != nil {
		return fmt.Errorf("record satisfaction: %w", err)
	}
	return nil
}

// Patterns returns every pattern in first-seen order
func (s *SQLiteLearningStore) Patterns(ctx context.Context) ([]learning.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ngram, pattern_key, successes, failures, last_used
		 FROM learning_patterns
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []learning.Pattern
	for rows.Next() {
		var p learning.Pattern
		var lastUsed int64
		if err := rows.Scan(&p.Text, &p.Key, &p.Successes, &p.Failures, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.LastUsed = time.Unix(0, lastUsed).UTC()
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *SQLiteLearningStore) LengthScores(ctx context.Context, userID string) (map[learning.LengthBucket]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket, score FROM length_preferences WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query length scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[learning.LengthBucket]int)
	for rows.Next() {
		var bucket string
		var score int
		if err := rows.Scan(&bucket, &score); err != nil {
			return nil, fmt.Errorf("scan length score: %w", err)
		}
		scores[learning.LengthBucket(bucket)] = score
	}
	return scores, rows.Err()
}

func (s *SQLiteLearningStore) Questions(ctx context.Context) ([]learning.QuestionCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question, frequency FROM learning_questions`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []learning.QuestionCount
	for rows.Next() {
		var q learning.QuestionCount
		if err := rows.Scan(&q.Question, &q.Frequency); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLiteLearningStore) Satisfaction(ctx context.Context) (map[string]learning.SatisfactionTally, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, total, ratings FROM user_satisfaction`)
	if err != nil {
		return nil, fmt.Errorf("query satisfaction: %w", err)
	}
	defer rows.Close()

	tallies := make(map[string]learning.SatisfactionTally)
	for rows.Next() {
		var userID string
		var tally learning.SatisfactionTally
		if err := rows.Scan(&userID, &tally.Sum, &tally.Count); err != nil {
			return nil, fmt.Errorf("scan satisfaction: %w", err)
		}
		tallies[userID] = tally
	}
	return tallies, rows.Err()
}

func (s *SQLiteLearningStore) DeleteStale(ctx context.Context, cutoff time.Time, minFrequency int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM learning_patterns
		 WHERE last_used < ? AND successes + failures < ?`,
		cutoff.UnixNano(), minFrequency,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale patterns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database
func (s *SQLiteLearningStore) Close() error {
	return s.db.Close()
}
