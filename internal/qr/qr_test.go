// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package qr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozz/vouch/internal/qr"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestEncoder_ProducesPNG(t *testing.T) {
	enc := qr.NewEncoder()

	png, err := enc.Encode("otpauth://totp/vouch:alice?secret=JBSWY3DP", 256)
	require.NoError(t, err)
	require.Greater(t, len(png), len(pngMagic))
	assert.Equal(t, pngMagic, png[:len(pngMagic)])
}

func TestEncoder_EmptyContent(t *testing.T) {
	enc := qr.NewEncoder()

	_, err := enc.Encode("", 256)
	assert.Error(t, err)
}
