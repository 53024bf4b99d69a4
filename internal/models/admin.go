package models

import (
	"time"

	"github.com/google/uuid"
)

type IDCardStatus string

const (
	IDCardStatusActive    IDCardStatus = "Active"
	IDCardStatusSuspended IDCardStatus = "Suspended"
	IDCardStatusRevoked   IDCardStatus = "Revoked"
	IDCardStatusExpired   IDCardStatus = "Expired"
)

func (s IDCardStatus) Valid() bool {
	switch s {
	case IDCardStatusActive, IDCardStatusSuspended, IDCardStatusRevoked, IDCardStatusExpired:
		return true
	}
	return false
}

// AdminUser is a back-office operator allowed to attempt biometric login.
type AdminUser struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	Email             string       `json:"email" db:"email"`
	FullName          string       `json:"full_name" db:"full_name"`
	IDCardNumber      string       `json:"id_card_number" db:"id_card_number"`
	IDCardStatus      IDCardStatus `json:"id_card_status" db:"id_card_status"`
	ReferencePhotoURL string       `json:"reference_photo_url" db:"reference_photo_url"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}
