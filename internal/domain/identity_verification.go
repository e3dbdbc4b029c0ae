package domain

import "time"

const (
	VerificationStatusPending  = "pending"
	VerificationStatusApproved = "approved"
	VerificationStatusRejected = "rejected"
)

// IdentityVerification es una solicitud de cupo ilimitado. Su aprobacion es
// el unico camino que vuelve is_unlimited=true en la cuota del usuario.
type IdentityVerification struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Method      string     `json:"method"`
	Status      string     `json:"status"`
	Notes       *string    `json:"notes,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}
