// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"crypto/rand"
	"encoding/base32"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/samber/oops"
)

const totpSecretBytes = 20

// base32 without padding, the alphabet authenticator apps accept.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPEngine generates and verifies RFC 6238 time-based one-time codes
// with HMAC-SHA1 and six digits.
type TOTPEngine struct {
	period uint
	skew   uint
}

// NewTOTPEngine creates an engine. Non-positive arguments fall back to
// a 30 second period and a one-step skew either side.
func NewTOTPEngine(periodSeconds, skew int) *TOTPEngine {
	if periodSeconds <= 0 {
		periodSeconds = 30
	}
	if skew < 0 {
		skew = 1
	}
	return &TOTPEngine{period: uint(periodSeconds), skew: uint(skew)}
}

// GenerateSecret returns a fresh 160-bit shared secret encoded as
// unpadded base32.
func (e *TOTPEngine) GenerateSecret() (string, error) {
	buf := make([]byte, totpSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("secret_generation_failed").Wrapf(err, "generating shared secret")
	}
	return secretEncoding.EncodeToString(buf), nil
}

func (e *TOTPEngine) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.period,
		Skew:      e.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateCode computes the code for secret at time t.
func (e *TOTPEngine) GenerateCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, e.opts())
	if err != nil {
		return "", oops.Code("code_generation_failed").Wrapf(err, "generating one-time code")
	}
	return code, nil
}

// VerifyCode reports whether code is valid for secret right now,
// accepting the configured skew either side of the current step.
func (e *TOTPEngine) VerifyCode(secret, code string) bool {
	return e.VerifyCodeAt(secret, code, time.Now())
}

// VerifyCodeAt is VerifyCode against an explicit clock. Codes that are
// not exactly six ASCII digits are rejected before any HMAC work.
func (e *TOTPEngine) VerifyCodeAt(secret, code string, t time.Time) bool {
	if !ValidCodeFormat(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t, e.opts())
	if err != nil {
		return false
	}
	return ok
}

// ValidCodeFormat reports whether code is exactly six ASCII digits.
func ValidCodeFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// uriEscaper covers the characters that matter inside otpauth URIs.
var uriEscaper = strings.NewReplacer(
	" ", "%20",
	":", "%3A",
	"/", "%2F",
	"?", "%3F",
	"&", "%26",
	"=", "%3D",
)

// EnrollmentURI builds the otpauth:// URI an authenticator app scans
// to enroll account under issuer with the given secret.
func (e *TOTPEngine) EnrollmentURI(secret, account, issuer string) string {
	var b strings.Builder
	b.WriteString("otpauth://totp/")
	b.WriteString(uriEscaper.Replace(issuer))
	b.WriteString(":")
	b.WriteString(uriEscaper.Replace(account))
	b.WriteString("?secret=")
	b.WriteString(secret)
	b.WriteString("&issuer=")
	b.WriteString(uriEscaper.Replace(issuer))
	b.WriteString("&algorithm=SHA1&digits=6&period=")
	b.WriteString(strconv.FormatUint(uint64(e.period), 10))
	return b.String()
}
