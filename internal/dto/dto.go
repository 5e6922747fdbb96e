package dto

import "time"

type RegisterSchoolRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SchoolID  string    `json:"school_id,omitempty"`
	Role      string    `json:"role"`
}

type UpsertEventRequest struct {
	Name                 string    `json:"name" validate:"required"`
	Slug                 string    `json:"slug"`
	Description          string    `json:"description"`
	Venue                string    `json:"venue"`
	StartsAt             time.Time `json:"starts_at" validate:"required"`
	RegistrationClosesAt time.Time `json:"registration_closes_at" validate:"required"`
	FeePerStudent        string    `json:"fee_per_student" validate:"required"`
	Currency             string    `json:"currency" validate:"required,len=3"`
	DiscountMinStudents  int       `json:"discount_min_students" validate:"gte=0"`
	DiscountPercentage   string    `json:"discount_percentage"`
	Published            bool      `json:"published"`
}

type StudentEntry struct {
	Name  string `json:"name" validate:"required"`
	Class string `json:"class"`
	Email string `json:"email" validate:"omitempty,email"`
}

type CreateBatchRequest struct {
	EventSlug string         `json:"event_slug" validate:"required"`
	Students  []StudentEntry `json:"students" validate:"required,min=1,dive"`
}

type InitiatePaymentRequest struct {
	BatchReference string `json:"batch_reference" validate:"required"`
	Gateway        string `json:"gateway" validate:"required"`
	// Braintree collects the payment method client side and sends its nonce
	// along with the initiation call.
	PaymentMethodNonce string `json:"payment_method_nonce"`
}

type InitiatePaymentResponse struct {
	PaymentID      string `json:"payment_id"`
	BatchReference string `json:"batch_reference"`
	Gateway        string `json:"gateway"`
	GatewayOrderID string `json:"gateway_order_id"`
	ClientSecret   string `json:"client_secret,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
}

type VerifyPaymentRequest struct {
	GatewayOrderID string `json:"gateway_order_id" validate:"required"`
}

type PaymentStatusResponse struct {
	PaymentID      string     `json:"payment_id"`
	BatchReference string     `json:"batch_reference"`
	Status         string     `json:"status"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	ReceiptURL     string     `json:"receipt_url,omitempty"`
}

type RejectPaymentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type BatchResponse struct {
	Reference          string     `json:"reference"`
	EventSlug          string     `json:"event_slug,omitempty"`
	StudentCount       int        `json:"student_count"`
	Subtotal           string     `json:"subtotal"`
	DiscountPercentage string     `json:"discount_percentage"`
	DiscountAmount     string     `json:"discount_amount"`
	TotalAmount        string     `json:"total_amount"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	PaymentStatus      string     `json:"payment_status"`
	PaymentMode        string     `json:"payment_mode,omitempty"`
	InvoiceNumber      string     `json:"invoice_number,omitempty"`
	InvoicePDFURL      string     `json:"invoice_pdf_url,omitempty"`
	InvoiceGeneratedAt *time.Time `json:"invoice_generated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
