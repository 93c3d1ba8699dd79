package cipher

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"filippo.io/age"
)

// envelope is the JSON wrapper an operator may place around an account
// batch: the payload field carries a base64 age ciphertext encrypted to
// this process's public key.
type envelope struct {
	Payload string `json:"payload"`
}

// EnvelopeOpener decrypts optionally age-encrypted operator input. A nil
// identity means no private key is configured and every input passes
// through unchanged.
type EnvelopeOpener struct {
	identity *age.X25519Identity
}

// NewEnvelopeOpener parses the age private key (AGE-SECRET-KEY-1...
// format) sourced from the process environment. An empty key yields an
// opener that never decrypts.
func NewEnvelopeOpener(privateKey string) (*EnvelopeOpener, error) {
	if privateKey == "" {
		return &EnvelopeOpener{}, nil
	}
	identity, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &EnvelopeOpener{identity: identity}, nil
}

// Unwrap returns the decrypted payload when data is an envelope and
// decryption succeeds, and otherwise returns data unchanged. Detection
// is best-effort, not schema-validated: operator batches arrive either
// in the clear or wrapped, with no mode flag. A failed decryption falls
// back to plaintext but is logged so a misconfigured key does not pass
// silently.
func (o *EnvelopeOpener) Unwrap(data []byte) []byte {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Payload == "" {
		return data
	}
	if o.identity == nil {
		slog.Warn("input looks like an encrypted envelope but no age key is configured, treating as plaintext")
		return data
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		slog.Warn("envelope payload is not valid base64, treating input as plaintext", "error", err)
		return data
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), o.identity)
	if err != nil {
		slog.Warn("envelope decryption failed, treating input as plaintext", "error", err)
		return data
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		slog.Warn("envelope decryption failed mid-stream, treating input as plaintext", "error", err)
		return data
	}
	return plaintext
}
