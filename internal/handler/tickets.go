package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/artifact"
	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/service"
)

// TicketHandler exposes ticket purchase and the ticket artifacts.
type TicketHandler struct {
	Reservations *service.ReservationService
	Artifacts    *service.ArtifactService
	Log          *zap.Logger
}

func NewTicketHandler(r *service.ReservationService, a *service.ArtifactService, log *zap.Logger) *TicketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketHandler{Reservations: r, Artifacts: a, Log: log}
}

// purchaseResp is the ticket as returned right after purchase.  QRCode is a
// data URL; when the image could not be rendered it is omitted and
// ArtifactError says so.  The ticket itself is sold either way.
type purchaseResp struct {
	model.Ticket
	QRCode        string `json:"qr_code,omitempty"`
	ArtifactError string `json:"artifact_error,omitempty"`
}

// Purchase sells seats of an event.  201 with the ticket on success.
func (h *TicketHandler) Purchase(c echo.Context) error {
	var in service.PurchaseInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	t, err := h.Reservations.Purchase(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.Log, err)
	}

	resp := purchaseResp{Ticket: *t}
	if png, err := h.Artifacts.EncodeQR(*t); err != nil {
		resp.ArtifactError = "qr code unavailable, fetch it later from the ticket qr endpoint"
	} else {
		resp.QRCode = artifact.DataURL(png)
	}
	return c.JSON(http.StatusCreated, resp)
}

// GetTicket returns the ticket joined with its event.
func (h *TicketHandler) GetTicket(c echo.Context) error {
	d, err := h.Reservations.GetTicket(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// TicketQR streams the QR image as PNG.
func (h *TicketHandler) TicketQR(c echo.Context) error {
	png, err := h.Artifacts.TicketQR(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// DownloadTicket streams the printable PDF ticket as an attachment.
func (h *TicketHandler) DownloadTicket(c echo.Context) error {
	doc, d, err := h.Artifacts.TicketPDF(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=ticket-%s.pdf", d.ID))
	return c.Blob(http.StatusOK, "application/pdf", doc)
}
