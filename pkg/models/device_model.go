package models

import (
	"time"

	"github.com/google/uuid"
)

// Device maps to table `devices`
type Device struct {
	ID             uuid.UUID
	DeviceID       string // external identifier chosen at registration
	Name           string
	Location       string
	CredentialHash string
	OwnerAccountID *uuid.UUID
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanTransact reports whether the device is in a state that may initiate payments.
func (d Device) CanTransact() bool {
	return d.Active && d.OwnerAccountID != nil
}
