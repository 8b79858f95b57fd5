package lib

import (
	"bytes"
	"errors"

	"github.com/yeqown/go-qrcode"
)

// EncodeQRCode renders a PIX copy-paste payload as a JPEG QR code.
func EncodeQRCode(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("empty QR payload")
	}
	qrc, err := qrcode.New(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
