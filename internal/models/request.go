package models

import "time"

// RequestStatus enumerates the lifecycle states of a tutoring request.
type RequestStatus string

const (
	RequestOpen      RequestStatus = "OPEN"
	RequestMatched   RequestStatus = "MATCHED"
	RequestCompleted RequestStatus = "COMPLETED"
	RequestCancelled RequestStatus = "CANCELLED"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestOpen:    {RequestMatched, RequestCancelled},
	RequestMatched: {RequestCompleted, RequestCancelled},
}

// CanTransition reports whether moving from s to next is allowed.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// Urgency is a display and filter hint only.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Request is a tutoring need posted by a student.
type Request struct {
	ID             string        `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	Subject        string        `db:"subject" json:"subject"`
	Topic          string        `db:"topic" json:"topic"`
	Description    string        `db:"description" json:"description"`
	DurationHours  float64       `db:"duration_hours" json:"duration_hours"`
	PreferredPrice int64         `db:"preferred_price" json:"preferred_price"`
	MaxPrice       int64         `db:"max_price" json:"max_price"`
	SessionAt      time.Time     `db:"session_at" json:"session_at"`
	Location       string        `db:"location" json:"location"`
	Urgency        Urgency       `db:"urgency" json:"urgency"`
	Status         RequestStatus `db:"status" json:"status"`
	MatchedTutorID *string       `db:"matched_tutor_id" json:"matched_tutor_id,omitempty"`
	AcceptedBidID  *string       `db:"accepted_bid_id" json:"accepted_bid_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// IsParticipant reports whether userID is the owner or the matched tutor.
func (r *Request) IsParticipant(userID string) bool {
	if r.StudentID == userID {
		return true
	}
	return r.MatchedTutorID != nil && *r.MatchedTutorID == userID
}

// RequestFilter captures listing criteria.
type RequestFilter struct {
	Status        *RequestStatus
	StudentID     string
	Subject       string
	Search        string
	Urgency       *Urgency
	MaxBudget     *int64
	SessionBefore *time.Time
	Page          int
	PageSize      int
}

// RequestTransition describes a conditional status change. Match fields are only
// applied when moving to MATCHED; a revert to OPEN clears them.
type RequestTransition struct {
	ID             string
	From           RequestStatus
	To             RequestStatus
	MatchedTutorID *string
	AcceptedBidID  *string
	At             time.Time
}
