package dto

// SubmitBidRequest describes a tutor's proposal.
type SubmitBidRequest struct {
	OfferedPrice           int64   `json:"offered_price" validate:"gt=0"`
	Message                string  `json:"message" validate:"required"`
	EstimatedDurationHours float64 `json:"estimated_duration_hours" validate:"gt=0,lte=24"`
}
