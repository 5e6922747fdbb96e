// Package invoice renders settlement invoices as PDF documents.
package invoice

import (
	"bytes"
	"fmt"
	"time"

	"schoolfest-backend/internal/money"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// Document is everything that appears on an invoice, resolved up front so
// rendering needs no database access.
type Document struct {
	Number    string
	Reference string
	IssuedAt  time.Time

	SchoolName    string
	SchoolEmail   string
	SchoolAddress string

	EventName     string
	EventVenue    string
	EventStartsAt time.Time

	StudentCount       int
	FeePerStudent      decimal.Decimal
	Subtotal           decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	Total              decimal.Decimal
	Currency           string

	PaymentID string
	Gateway   string
	PaidAt    *time.Time
}

type Renderer interface {
	Render(doc *Document) ([]byte, error)
}

type pdfRenderer struct{}

func NewPDFRenderer() Renderer {
	return pdfRenderer{}
}

func (pdfRenderer) Render(doc *Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(120, 10, "INVOICE")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(70, 10, doc.Number, "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(190, 5, fmt.Sprintf("Issued %s", doc.IssuedAt.Format("2 January 2006")), "", 1, "R", false, 0, "")
	pdf.CellFormat(190, 5, fmt.Sprintf("Batch %s", doc.Reference), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(190, 6, "Billed to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(190, 5, doc.SchoolName, "", 1, "L", false, 0, "")
	if doc.SchoolAddress != "" {
		pdf.CellFormat(190, 5, doc.SchoolAddress, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(190, 5, doc.SchoolEmail, "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(190, 6, "Event", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(190, 5, doc.EventName, "", 1, "L", false, 0, "")
	detail := doc.EventStartsAt.Format("2 January 2006")
	if doc.EventVenue != "" {
		detail = fmt.Sprintf("%s, %s", doc.EventVenue, detail)
	}
	pdf.CellFormat(190, 5, detail, "", 1, "L", false, 0, "")
	pdf.Ln(8)

	// Line items table. A batch always produces exactly one line.
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(100, 7, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 7, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(100, 7, fmt.Sprintf("Student registration, %s", doc.EventName), "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, fmt.Sprintf("%d", doc.StudentCount), "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 7, formatAmount(doc.FeePerStudent, doc.Currency), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, formatAmount(doc.Subtotal, doc.Currency), "1", 1, "R", false, 0, "")
	pdf.Ln(2)

	pdf.CellFormat(120, 6, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(35, 6, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, formatAmount(doc.Subtotal, doc.Currency), "", 1, "R", false, 0, "")

	if doc.DiscountAmount.IsPositive() {
		pdf.CellFormat(120, 6, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("Discount (%s%%)", doc.DiscountPercentage.String()), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, "-"+formatAmount(doc.DiscountAmount, doc.Currency), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(120, 8, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(35, 8, "Total paid", "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, formatAmount(doc.Total, doc.Currency), "T", 1, "R", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(190, 5, fmt.Sprintf("Payment %s via %s", doc.PaymentID, doc.Gateway), "", 1, "L", false, 0, "")
	if doc.PaidAt != nil {
		pdf.CellFormat(190, 5, fmt.Sprintf("Paid on %s", doc.PaidAt.Format("2 January 2006 15:04 MST")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(190, 5, "This invoice was generated automatically and is valid without a signature.", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", doc.Number, err)
	}
	return buf.Bytes(), nil
}

func formatAmount(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(money.Exponent(currency)))
}
