package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/tutorly-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Schema creates the marketplace tables when they do not exist yet.
// The partial unique indexes back the one-accepted-bid and one-active-bid rules.
const Schema = `
CREATE TABLE IF NOT EXISTS tutoring_requests (
	id               TEXT PRIMARY KEY,
	student_id       TEXT NOT NULL,
	subject          TEXT NOT NULL,
	topic            TEXT NOT NULL,
	description      TEXT NOT NULL,
	duration_hours   DOUBLE PRECISION NOT NULL CHECK (duration_hours > 0),
	preferred_price  BIGINT NOT NULL,
	max_price        BIGINT NOT NULL CHECK (max_price >= preferred_price),
	session_at       TIMESTAMPTZ NOT NULL,
	location         TEXT NOT NULL,
	urgency          TEXT NOT NULL,
	status           TEXT NOT NULL,
	matched_tutor_id TEXT,
	accepted_bid_id  TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tutoring_requests_status ON tutoring_requests (status, created_at DESC);

CREATE TABLE IF NOT EXISTS bids (
	id                       TEXT PRIMARY KEY,
	request_id               TEXT NOT NULL REFERENCES tutoring_requests(id),
	tutor_id                 TEXT NOT NULL,
	offered_price            BIGINT NOT NULL,
	message                  TEXT NOT NULL,
	estimated_duration_hours DOUBLE PRECISION NOT NULL CHECK (estimated_duration_hours > 0),
	status                   TEXT NOT NULL,
	seq                      BIGSERIAL,
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_one_accepted ON bids (request_id) WHERE status = 'ACCEPTED';
CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_active_tutor ON bids (request_id, tutor_id) WHERE status <> 'WITHDRAWN';

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL,
	amount             BIGINT NOT NULL,
	kind               TEXT NOT NULL,
	method             TEXT NOT NULL DEFAULT '',
	related_request_id TEXT,
	seq                BIGSERIAL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id, seq);

CREATE TABLE IF NOT EXISTS rating_aggregates (
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	average    DOUBLE PRECISION NOT NULL,
	count      INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, role)
);

CREATE TABLE IF NOT EXISTS reviews (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL REFERENCES tutoring_requests (id),
	reviewer_id TEXT NOT NULL,
	reviewee_id TEXT NOT NULL,
	role        TEXT NOT NULL,
	rating      INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (request_id, reviewer_id)
);

CREATE INDEX IF NOT EXISTS idx_reviews_reviewee ON reviews (reviewee_id, created_at DESC);
`

// Migrate applies Schema.
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
