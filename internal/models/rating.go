package models

import "time"

// RatingAggregate is the running average of scores a user received in one role.
type RatingAggregate struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Role      UserRole  `db:"role" json:"role"`
	Average   float64   `db:"average" json:"average"`
	Count     int       `db:"count" json:"count"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Apply folds a new score into the aggregate.
func (a RatingAggregate) Apply(score int) RatingAggregate {
	a.Average = (a.Average*float64(a.Count) + float64(score)) / float64(a.Count+1)
	a.Count++
	return a
}

// Retract removes a previously applied score.
func (a RatingAggregate) Retract(score int) RatingAggregate {
	if a.Count <= 1 {
		a.Average = 0
		a.Count = 0
		return a
	}
	a.Average = (a.Average*float64(a.Count) - float64(score)) / float64(a.Count-1)
	a.Count--
	return a
}

// Review is the score and comment one participant left for the other when a
// session completed. Role is the role the reviewee acted in.
type Review struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"request_id"`
	ReviewerID string    `db:"reviewer_id" json:"reviewer_id"`
	RevieweeID string    `db:"reviewee_id" json:"reviewee_id"`
	Role       UserRole  `db:"role" json:"role"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    string    `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
