package dto

import "time"

// CreateRequest describes the payload for posting a tutoring request.
type CreateRequest struct {
	Subject        string    `json:"subject" validate:"required,max=100"`
	Topic          string    `json:"topic" validate:"required,max=200"`
	Description    string    `json:"description" validate:"required"`
	DurationHours  float64   `json:"duration_hours" validate:"gt=0,lte=24"`
	PreferredPrice int64     `json:"preferred_price" validate:"gt=0"`
	MaxPrice       int64     `json:"max_price" validate:"gt=0"`
	SessionAt      time.Time `json:"session_at" validate:"required"`
	Location       string    `json:"location" validate:"required,max=200"`
	Urgency        string    `json:"urgency" validate:"omitempty,oneof=low medium high"`
}

// ListRequestsQuery holds open listing filters bound from the query string.
type ListRequestsQuery struct {
	Subject   string `form:"subject" json:"subject"`
	Search    string `form:"search" json:"search"`
	Urgency   string `form:"urgency" json:"urgency" validate:"omitempty,oneof=low medium high"`
	MaxBudget *int64 `form:"maxBudget" json:"maxBudget" validate:"omitempty,gt=0"`
	Page      int    `form:"page" json:"page" validate:"gte=0"`
	PageSize  int    `form:"pageSize" json:"pageSize" validate:"gte=0,lte=100"`
}

// CompleteSessionRequest carries the two ratings exchanged at completion and
// optional review comments.
type CompleteSessionRequest struct {
	RatingGivenByStudent int    `json:"rating_given_by_student"`
	RatingGivenByTutor   int    `json:"rating_given_by_tutor"`
	StudentComment       string `json:"student_comment,omitempty" validate:"max=1000"`
	TutorComment         string `json:"tutor_comment,omitempty" validate:"max=1000"`
}
