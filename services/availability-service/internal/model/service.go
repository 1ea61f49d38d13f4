package model

import "time"

type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "active"
	ServiceInactive ServiceStatus = "inactive"
)

func (s ServiceStatus) Valid() bool {
	return s == ServiceActive || s == ServiceInactive
}

type Service struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"owner_id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	PriceCents      int64         `json:"price_cents"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          ServiceStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}
