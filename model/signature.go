// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix identifies the signature scheme on the wire.
const SignaturePrefix = "sha256="

// SignPayload computes the webhook signature over the raw body:
// "sha256=" + hex(HMAC-SHA256(secret, body)).
//
// Signing is deterministic: the same (body, secret) always yields the same
// signature.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the raw body using a
// constant-time comparison.
func VerifySignature(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}
	expected := SignPayload(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
