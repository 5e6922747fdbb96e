package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type School struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:255;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:128;not null"`
	Phone        string `gorm:"size:32"`
	Address      string `gorm:"size:512"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Event struct {
	ID                   string `gorm:"primaryKey;size:36"`
	Name                 string `gorm:"size:255;not null"`
	Slug                 string `gorm:"size:128;uniqueIndex;not null"`
	Description          string
	Venue                string `gorm:"size:255"`
	StartsAt             time.Time
	RegistrationClosesAt time.Time
	FeePerStudent        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency             string          `gorm:"size:8;not null"`
	// Group discount: applied when a batch carries at least
	// DiscountMinStudents registrations. Zero disables it.
	DiscountMinStudents int
	DiscountPercentage  decimal.Decimal `gorm:"type:numeric(5,2)"`
	Published           bool            `gorm:"index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OfflineDetails records a bank-transfer style payment awaiting (or past)
// manual verification. Embedded in both Batch and Payment.
type OfflineDetails struct {
	TransactionRef string `gorm:"size:128"`
	ReceiptURL     string `gorm:"size:512"`
	SubmittedAt    *time.Time
	VerifiedBy     string `gorm:"size:255"`
	VerifiedAt     *time.Time
}

type Batch struct {
	ID           string `gorm:"primaryKey;size:36"`
	Reference    string `gorm:"size:64;uniqueIndex;not null"`
	SchoolID     string `gorm:"size:36;index;not null"`
	EventID      string `gorm:"size:36;index;not null"`
	StudentCount int    `gorm:"not null"`

	Subtotal           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DiscountPercentage decimal.Decimal `gorm:"type:numeric(5,2)"`
	DiscountAmount     decimal.Decimal `gorm:"type:numeric(12,2)"`
	TotalAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency           string          `gorm:"size:8;not null"`

	Status BatchStatus `gorm:"size:32;index;not null"`
	// Denormalized mirror for cheap reads; the Payment row is authoritative.
	PaymentStatus PaymentStatus  `gorm:"size:32;index"`
	PaymentMode   PaymentMode    `gorm:"size:16"`
	Offline       OfflineDetails `gorm:"embedded;embeddedPrefix:offline_"`

	InvoiceYear        int
	InvoiceSeq         int
	InvoiceNumber      string `gorm:"size:64"`
	InvoicePDFURL      string `gorm:"size:512"`
	InvoiceGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Registration struct {
	ID           string             `gorm:"primaryKey;size:36"`
	BatchID      string             `gorm:"size:36;index;not null"`
	SchoolID     string             `gorm:"size:36;index;not null"`
	EventID      string             `gorm:"size:36;index;not null"`
	StudentName  string             `gorm:"size:255;not null"`
	StudentClass string             `gorm:"size:32"`
	StudentEmail string             `gorm:"size:255"`
	Status       RegistrationStatus `gorm:"size:32;index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Payment struct {
	ID       string `gorm:"primaryKey;size:36"`
	BatchID  string `gorm:"size:36;index;not null"`
	SchoolID string `gorm:"size:36;index;not null"`
	EventID  string `gorm:"size:36;index;not null"`

	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency    string          `gorm:"size:8;not null"`
	PaymentMode PaymentMode     `gorm:"size:16;not null"`

	Gateway string `gorm:"size:32;index"`
	// The provider's intent id; the join key for webhooks and verification.
	// Offline payments get a locally generated one so uniqueness holds.
	GatewayOrderID   string `gorm:"size:128;uniqueIndex;not null"`
	GatewayPaymentID string `gorm:"size:128;index"`

	Status     PaymentStatus `gorm:"size:32;index;not null"`
	PaidAt     *time.Time
	ReceiptURL string         `gorm:"size:512"`
	Offline    OfflineDetails `gorm:"embedded;embeddedPrefix:offline_"`

	Refunded      bool
	RefundAmount  decimal.Decimal `gorm:"type:numeric(12,2)"`
	FailureReason string          `gorm:"size:512"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookEvent is the durable receipt of every inbound gateway callback.
// The composite unique index is the race barrier for concurrent deliveries
// of the same event. Rows expire after the retention window.
type WebhookEvent struct {
	ID          uint   `gorm:"primaryKey"`
	Gateway     string `gorm:"size:32;not null;uniqueIndex:idx_gateway_webhook_id"`
	WebhookID   string `gorm:"size:128;not null;uniqueIndex:idx_gateway_webhook_id"`
	EventType   string `gorm:"size:64;index"`
	Payload     datatypes.JSON
	Processed   bool `gorm:"index"`
	ProcessedAt *time.Time
	Error       string    `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"index"`
}

// NewID returns a fresh uuid for entity primary keys.
func NewID() string {
	return uuid.NewString()
}

// NewReference builds a human-readable unique reference such as
// SF-20260823-4F2A1B9C.
func NewReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().Format("20060102"), id[:8])
}
