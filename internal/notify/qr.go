// Package notify delivers ticket confirmations to customers.
package notify

import (
	"github.com/cockroachdb/errors"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// RenderQR encodes a ticket token as a PNG QR code.
func RenderQR(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("empty ticket token")
	}
	png, err := qrcode.Encode(token, qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}
