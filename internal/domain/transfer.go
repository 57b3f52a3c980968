package domain

import "time"

// TransferStatus is the state of a credit gift. pending → accepted is
// the only explicit transition; expiry is checked lazily against
// ExpiresAt, so there is no stored "expired" transition.
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferExpired  TransferStatus = "expired"
)

// CreditTransfer is a one-credit gift between accounts, redeemed via a
// time-limited one-time code. The sender's unit is reserved on their
// package at creation time, so acceptance only ever grants and never
// re-checks the sender.
type CreditTransfer struct {
	ID             string         `json:"id"`
	SenderID       string         `json:"senderId"`
	RecipientEmail string         `json:"recipientEmail,omitempty"`
	// RecipientID is pre-resolved when the email already belongs to an
	// account; otherwise filled in at acceptance.
	RecipientID string `json:"recipientId,omitempty"`
	// SourcePackageID records which package absorbed the reservation.
	SourcePackageID string         `json:"sourcePackageId"`
	Code            string         `json:"code"`
	Message         string         `json:"message,omitempty"`
	Status          TransferStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	ExpiresAt       time.Time      `json:"expiresAt"`
	AcceptedAt      *time.Time     `json:"acceptedAt,omitempty"`
}

// EffectiveStatus applies lazy expiry on top of the stored status.
func (t CreditTransfer) EffectiveStatus(now time.Time) TransferStatus {
	if t.Status == TransferPending && now.After(t.ExpiresAt) {
		return TransferExpired
	}
	return t.Status
}
