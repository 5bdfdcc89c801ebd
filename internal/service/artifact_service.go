package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/metrics"
	"github.com/iliyamo/eventhub-tickets/internal/model"
)

// QREncoder turns a ticket payload into image bytes.
type QREncoder interface {
	Encode(payload string) ([]byte, error)
}

// PDFRenderer turns a ticket and its QR image into a printable document.
type PDFRenderer interface {
	Render(d model.TicketDetail, qrPNG []byte) ([]byte, error)
}

// TicketReader loads tickets for rendering.
type TicketReader interface {
	GetTicket(ctx context.Context, id string) (*model.TicketDetail, error)
}

// ArtifactService renders QR codes and PDFs for stored tickets.  It only
// reads: a rendering failure never affects the reservation.
type ArtifactService struct {
	tickets TicketReader
	qr      QREncoder
	pdf     PDFRenderer
	log     *zap.Logger
}

func NewArtifactService(tickets TicketReader, qr QREncoder, pdf PDFRenderer, log *zap.Logger) *ArtifactService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArtifactService{tickets: tickets, qr: qr, pdf: pdf, log: log}
}

// EncodeQR renders the QR image of a ticket already in hand.
func (s *ArtifactService) EncodeQR(t model.Ticket) ([]byte, error) {
	png, err := s.qr.Encode(t.QRPayload)
	if err != nil {
		metrics.ArtifactFailures.WithLabelValues("qr").Inc()
		s.log.Warn("qr generation failed", zap.String("ticket_id", t.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: qr code: %w", ErrArtifactGeneration, err)
	}
	return png, nil
}

// TicketQR loads the ticket and renders its QR image.
func (s *ArtifactService) TicketQR(ctx context.Context, id string) ([]byte, error) {
	d, err := s.tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.EncodeQR(d.Ticket)
}

// TicketPDF loads the ticket and renders the printable ticket.
func (s *ArtifactService) TicketPDF(ctx context.Context, id string) ([]byte, *model.TicketDetail, error) {
	d, err := s.tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	png, err := s.EncodeQR(d.Ticket)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.pdf.Render(*d, png)
	if err != nil {
		metrics.ArtifactFailures.WithLabelValues("pdf").Inc()
		s.log.Warn("pdf generation failed", zap.String("ticket_id", d.ID), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: pdf: %w", ErrArtifactGeneration, err)
	}
	return doc, d, nil
}
