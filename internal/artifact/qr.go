// Package artifact renders ticket artifacts: the QR code image and the
// printable PDF ticket.
package artifact

import (
	"encoding/base64"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrEmptyPayload is returned when there is nothing to encode.
var ErrEmptyPayload = errors.New("empty qr payload")

// QREncoder renders ticket payloads as PNG QR codes.
type QREncoder struct {
	Size  int                  // image width and height in pixels
	Level qrcode.RecoveryLevel // error correction level
}

// NewQREncoder returns an encoder producing 256px images with medium
// error correction.
func NewQREncoder() *QREncoder {
	return &QREncoder{Size: 256, Level: qrcode.Medium}
}

// Encode returns the PNG bytes of payload.
func (q *QREncoder) Encode(payload string) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	png, err := qrcode.Encode(payload, q.Level, q.Size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// DataURL wraps PNG bytes as a data: URL that browsers render directly.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
