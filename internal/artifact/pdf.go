package artifact

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/iliyamo/eventhub-tickets/internal/model"
)

// PDFRenderer lays out a one page A4 ticket.
type PDFRenderer struct {
	// Brand is printed in the header band.
	Brand string
}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{Brand: "EventHub"} }

const qrImageName = "ticket-qr"

// Render returns the PDF bytes for d.  qrPNG is embedded when non-empty.
func (r *PDFRenderer) Render(d model.TicketDetail, qrPNG []byte) ([]byte, error) {
	if d.ID == "" {
		return nil, errors.New("render pdf: ticket without id")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Ticket %s", d.ID), true)
	pdf.SetAuthor(r.Brand, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// header band
	pdf.SetFillColor(33, 37, 41)
	pdf.Rect(0, 0, 210, 30, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetXY(15, 9)
	pdf.CellFormat(180, 12, tr(r.Brand+" Ticket"), "", 1, "L", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(15, 40)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(180, 9, tr(d.Event.Title), "", "L", false)
	pdf.Ln(4)

	row := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(40, 8, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, tr(value), "", 1, "L", false, 0, "")
	}
	row("Date", d.Event.Date.UTC().Format("Monday, 02 January 2006 15:04 MST"))
	row("Location", d.Event.Location)
	row("Category", d.Event.Category)
	pdf.Ln(4)
	row("Name", d.CustomerName)
	row("Email", d.CustomerEmail)
	row("Quantity", fmt.Sprintf("%d", d.Quantity))
	row("Total", FormatCents(d.TotalCents()))
	row("Purchased", d.PurchasedAt.UTC().Format("2006-01-02 15:04 MST"))
	row("Ticket ID", d.ID)

	if len(qrPNG) > 0 {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(qrImageName, opts, bytes.NewReader(qrPNG))
		pdf.ImageOptions(qrImageName, 135, 40, 60, 60, false, opts, 0, "")
	}

	pdf.SetY(-45)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Important Notice", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, tr("Present this ticket, printed or on your phone, at the entrance. "+
		"The QR code is valid for the number of seats shown above and can be scanned once."), "", "L", false)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatCents renders an amount as dollars, e.g. 2550 -> "$25.50".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
