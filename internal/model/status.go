package model

type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchSubmitted BatchStatus = "submitted"
	BatchConfirmed BatchStatus = "confirmed"
	BatchCancelled BatchStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentProcessing          PaymentStatus = "processing"
	PaymentPendingVerification PaymentStatus = "pending_verification"
	PaymentCompleted           PaymentStatus = "completed"
	PaymentFailed              PaymentStatus = "failed"
	PaymentRefunded            PaymentStatus = "refunded"
)

// SettleableStatuses are the states a Payment may leave through a
// completed or failed transition. Everything else is terminal.
func SettleableStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentPending, PaymentProcessing, PaymentPendingVerification}
}

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

type PaymentMode string

const (
	PaymentModeOnline  PaymentMode = "online"
	PaymentModeOffline PaymentMode = "offline"
)
