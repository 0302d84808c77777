package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const bidColumns = `id, request_id, tutor_id, offered_price, message, estimated_duration_hours, status, seq, created_at, updated_at`

// BidRepository provides database access for bids. Uniqueness of the accepted
// bid and of a tutor's active bid is enforced by partial unique indexes.
type BidRepository struct {
	db *sqlx.DB
}

// NewBidRepository creates a new instance of BidRepository.
func NewBidRepository(db *sqlx.DB) *BidRepository {
	return &BidRepository{db: db}
}

// Create inserts a bid and records its insertion sequence.
func (r *BidRepository) Create(ctx context.Context, bid *models.Bid) error {
	const query = `INSERT INTO bids (id, request_id, tutor_id, offered_price, message, estimated_duration_hours, status, created_at, updated_at) VALUES (:id, :request_id, :tutor_id, :offered_price, :message, :estimated_duration_hours, :status, :created_at, :updated_at) RETURNING seq`
	rows, err := r.db.NamedQueryContext(ctx, query, bid)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create bid: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&bid.Seq); err != nil {
			return fmt.Errorf("scan bid seq: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create bid: %w", err)
	}
	return nil
}

// FindByID returns a bid by identifier.
func (r *BidRepository) FindByID(ctx context.Context, id string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1 LIMIT 1`
	var bid models.Bid
	if err := r.db.GetContext(ctx, &bid, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find bid by id: %w", err)
	}
	return &bid, nil
}

// ListByRequest returns bids on a request oldest first.
func (r *BidRepository) ListByRequest(ctx context.Context, requestID string) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE request_id = $1 ORDER BY created_at ASC, seq ASC`
	var bids []models.Bid
	if err := r.db.SelectContext(ctx, &bids, query, requestID); err != nil {
		return nil, fmt.Errorf("list bids by request: %w", err)
	}
	return bids, nil
}

// ListByTutor returns a tutor's bids newest first.
func (r *BidRepository) ListByTutor(ctx context.Context, tutorID string) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE tutor_id = $1 ORDER BY created_at DESC, seq DESC`
	var bids []models.Bid
	if err := r.db.SelectContext(ctx, &bids, query, tutorID); err != nil {
		return nil, fmt.Errorf("list bids by tutor: %w", err)
	}
	return bids, nil
}

// UpdateStatus moves a bid from one status to another only while the row is still in from.
func (r *BidRepository) UpdateStatus(ctx context.Context, id string, from, to models.BidStatus, at time.Time) (*models.Bid, error) {
	query := `UPDATE bids SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2 RETURNING ` + bidColumns
	var bid models.Bid
	if err := r.db.GetContext(ctx, &bid, query, id, from, to, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		if isUniqueViolation(err) {
			return nil, ErrUniqueViolation
		}
		return nil, fmt.Errorf("update bid status: %w", err)
	}
	return &bid, nil
}
