package authkit

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

// RenderProvisioningQR renders an otpauth:// provisioning URI as a PNG
// QR code sized edge×edge pixels, for display during two-factor setup.
func RenderProvisioningQR(provisioningURI string, edge int) ([]byte, error) {
	if edge <= 0 {
		edge = 200
	}
	key, err := otp.NewKeyFromURL(provisioningURI)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}
	img, err := key.Image(edge, edge)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}
