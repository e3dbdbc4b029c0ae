package domain

import "time"

// ApiQuota es el libro mayor mensual de importaciones por usuario.
// usage_count solo tiene sentido para current_month; un mes viejo se
// resetea de forma atomica antes de evaluarse.
type ApiQuota struct {
	UserID       string    `json:"user_id"`
	CurrentMonth string    `json:"current_month"` // formato YYYY-MM
	UsageCount   int       `json:"usage_count"`
	MonthlyLimit int       `json:"monthly_limit"`
	IsUnlimited  bool      `json:"is_unlimited"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Remaining devuelve el cupo restante del mes; -1 representa ilimitado.
func (q ApiQuota) Remaining() int {
	if q.IsUnlimited {
		return -1
	}
	if rem := q.MonthlyLimit - q.UsageCount; rem > 0 {
		return rem
	}
	return 0
}

// QuotaMonth formatea el mes calendario de t como YYYY-MM en UTC.
func QuotaMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
