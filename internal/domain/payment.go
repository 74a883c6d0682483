package domain

import "time"

type PaymentStatus string

const (
	// PaymentStatusInitiated marks the write-ahead intent recorded before the push is sent.
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPending   PaymentStatus = "pending"
	// PaymentStatusOrphaned marks a push the payer received whose submission could not be
	// recorded normally. It carries the gateway ids and stays open until settled.
	PaymentStatusOrphaned  PaymentStatus = "orphaned"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

type Payment struct {
	ID                string
	BookingID         string
	UserID            string
	Amount            int64
	PhoneNumber       string
	MerchantRequestID string
	CheckoutRequestID string
	Status            PaymentStatus
	ReceiptNumber     string
	ResultDescription string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
