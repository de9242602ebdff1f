// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignPayload(t *testing.T) {
	body := []byte(`{"event":{"id":"abc"}}`)

	t.Run("deterministic", func(t *testing.T) {
		first := SignPayload("k", body)
		second := SignPayload("k", body)
		assert.Equal(t, first, second)
	})

	t.Run("matches raw hmac", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte("k"))
		mac.Write(body)
		expected := fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))

		assert.Equal(t, expected, SignPayload("k", body))
	})

	t.Run("different secrets differ", func(t *testing.T) {
		assert.NotEqual(t, SignPayload("k", body), SignPayload("k2", body))
	})
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":{"id":"abc"}}`)
	signature := SignPayload("k", body)
	require.NotEmpty(t, signature)

	t.Run("round trip", func(t *testing.T) {
		assert.True(t, VerifySignature("k", body, signature))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature("not-k", body, signature))
	})

	t.Run("tampered body", func(t *testing.T) {
		assert.False(t, VerifySignature("k", []byte(`{"event":{"id":"abd"}}`), signature))
	})

	t.Run("missing prefix", func(t *testing.T) {
		assert.False(t, VerifySignature("k", body, signature[len(SignaturePrefix):]))
	})
}
