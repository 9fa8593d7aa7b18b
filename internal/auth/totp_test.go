// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozz/vouch/internal/auth"
)

func TestTOTPEngine_GenerateSecret(t *testing.T) {
	e := auth.NewTOTPEngine(30, 1)

	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	// 20 bytes encode to 32 unpadded base32 characters.
	assert.Len(t, secret, 32)
	assert.NotContains(t, secret, "=")
	for _, c := range secret {
		assert.True(t, (c >= 'A' && c <= 'Z') || (c >= '2' && c <= '7'),
			"secret must use the base32 alphabet, got %q", c)
	}

	other, err := e.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestTOTPEngine_VerifyCodeWindow(t *testing.T) {
	e := auth.NewTOTPEngine(30, 1)
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)

	code, err := e.GenerateCode(secret, now)
	require.NoError(t, err)
	require.Len(t, code, 6)

	t.Run("current step", func(t *testing.T) {
		assert.True(t, e.VerifyCodeAt(secret, code, now))
	})
	t.Run("one step behind", func(t *testing.T) {
		assert.True(t, e.VerifyCodeAt(secret, code, now.Add(30*time.Second)))
	})
	t.Run("one step ahead", func(t *testing.T) {
		assert.True(t, e.VerifyCodeAt(secret, code, now.Add(-30*time.Second)))
	})
	t.Run("two steps away", func(t *testing.T) {
		assert.False(t, e.VerifyCodeAt(secret, code, now.Add(90*time.Second)))
		assert.False(t, e.VerifyCodeAt(secret, code, now.Add(-90*time.Second)))
	})
}

func TestTOTPEngine_VerifyCodeRejectsBadFormat(t *testing.T) {
	e := auth.NewTOTPEngine(30, 1)
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "12345a", "ableable", "12 456"} {
		assert.False(t, e.VerifyCode(secret, code), "code %q", code)
	}
}

func TestValidCodeFormat(t *testing.T) {
	assert.True(t, auth.ValidCodeFormat("000000"))
	assert.True(t, auth.ValidCodeFormat("987654"))
	assert.False(t, auth.ValidCodeFormat("98765"))
	assert.False(t, auth.ValidCodeFormat("9876543"))
	assert.False(t, auth.ValidCodeFormat("98765x"))
}

func TestTOTPEngine_EnrollmentURI(t *testing.T) {
	e := auth.NewTOTPEngine(30, 1)

	uri := e.EnrollmentURI("JBSWY3DPEHPK3PXP", "steve", "My Server")

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/My%20Server:steve?"), "uri was %s", uri)
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, uri, "issuer=My%20Server")
	assert.Contains(t, uri, "algorithm=SHA1")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}

func TestTOTPEngine_EnrollmentURIEscapesReservedCharacters(t *testing.T) {
	e := auth.NewTOTPEngine(30, 1)

	uri := e.EnrollmentURI("SECRET", "a/b?c", "x&y=z")

	assert.Contains(t, uri, "otpauth://totp/x%26y%3Dz:a%2Fb%3Fc?")
	assert.Contains(t, uri, "issuer=x%26y%3Dz")
}

func TestTOTPEngine_DefaultsApplied(t *testing.T) {
	e := auth.NewTOTPEngine(0, -1)
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	code, err := e.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.True(t, e.VerifyCodeAt(secret, code, now))
}
