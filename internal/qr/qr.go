// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

// Package qr renders text as QR code PNG images, used to hand
// enrollment URIs to authenticator apps.
package qr

import (
	"github.com/samber/oops"
	qrcode "github.com/skip2/go-qrcode"
)

// Encoder renders PNG QR codes at medium error correction.
type Encoder struct{}

// NewEncoder creates an Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Encode renders content as a size x size pixel PNG.
func (e *Encoder) Encode(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, oops.Code("qr_encode_failed").Wrapf(err, "encoding qr code")
	}
	return png, nil
}
