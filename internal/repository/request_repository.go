package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const requestColumns = `id, student_id, subject, topic, description, duration_hours, preferred_price, max_price, session_at, location, urgency, status, matched_tutor_id, accepted_bid_id, created_at, updated_at`

// RequestRepository provides database access for tutoring requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new instance of RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	const query = `INSERT INTO tutoring_requests (id, student_id, subject, topic, description, duration_hours, preferred_price, max_price, session_at, location, urgency, status, created_at, updated_at) VALUES (:id, :student_id, :subject, :topic, :description, :duration_hours, :preferred_price, :max_price, :session_at, :location, :urgency, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// FindByID returns a request by identifier.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM tutoring_requests WHERE id = $1 LIMIT 1`
	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}
	return &req, nil
}

// UpdateStatus applies t only while the row still has status t.From.
func (r *RequestRepository) UpdateStatus(ctx context.Context, t models.RequestTransition) (*models.Request, error) {
	var (
		set  string
		args = []interface{}{t.ID, t.From, t.To}
	)
	switch t.To {
	case models.RequestMatched:
		set = "status = $3, matched_tutor_id = $4, accepted_bid_id = $5, updated_at = $6"
		args = append(args, t.MatchedTutorID, t.AcceptedBidID, t.At)
	case models.RequestOpen:
		set = "status = $3, matched_tutor_id = NULL, accepted_bid_id = NULL, updated_at = $4"
		args = append(args, t.At)
	default:
		set = "status = $3, updated_at = $4"
		args = append(args, t.At)
	}
	query := `UPDATE tutoring_requests SET ` + set + ` WHERE id = $1 AND status = $2 RETURNING ` + requestColumns

	var req models.Request
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("update request status: %w", err)
	}
	return &req, nil
}

// List returns requests based on filters with total count, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	baseQuery := `FROM tutoring_requests WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(subject) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.Subject))
	}
	if filter.Urgency != nil {
		conditions = append(conditions, fmt.Sprintf("urgency = $%d", len(args)+1))
		args = append(args, *filter.Urgency)
	}
	if filter.MaxBudget != nil {
		conditions = append(conditions, fmt.Sprintf("max_price <= $%d", len(args)+1))
		args = append(args, *filter.MaxBudget)
	}
	if filter.SessionBefore != nil {
		conditions = append(conditions, fmt.Sprintf("session_at < $%d", len(args)+1))
		args = append(args, *filter.SessionBefore)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(subject) LIKE $%d OR LOWER(topic) LIKE $%d OR LOWER(description) LIKE $%d)", n, n, n))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", requestColumns, baseQuery, pageSize, offset)
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	return requests, total, nil
}
