// Package secureelement defines the signing collaborator the config and
// transport tasks depend on to authenticate outbound requests, and
// provides a software-only implementation of it. SecureElement is a
// concrete minimal implementation so the daemon has something real to
// sign with, not a claim that production hardware should be emulated in
// software.
package secureelement

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// SecureElement is held for the duration of exactly one signing operation
// at a time; Go has no statement-scoped resource guard, so Acquire/Release
// stand in for it explicitly.
type SecureElement interface {
	// Acquire reserves exclusive access to the element for the caller,
	// blocking until any concurrent holder releases it.
	Acquire()

	// Release gives up exclusive access acquired via Acquire.
	Release()

	// SerialNumber returns the element's hex-encoded serial number.
	SerialNumber() string

	// Sign returns the hex-encoded signature over message.
	Sign(message string) (string, error)
}

// Software is an Ed25519-backed SecureElement: stdlib crypto, no external
// signing library.
type Software struct {
	mu     sync.Mutex
	serial [8]byte
	priv   ed25519.PrivateKey
}

// NewSoftware generates a fresh Ed25519 keypair and an 8-byte serial
// number. Every process restart gets a new identity — there is no
// persistence layer for key material in this gateway.
func NewSoftware() (*Software, error) {
	var serial [8]byte
	if _, err := rand.Read(serial[:]); err != nil {
		return nil, fmt.Errorf("secureelement: generate serial: %w", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("secureelement: generate key: %w", err)
	}
	return &Software{serial: serial, priv: priv}, nil
}

func (s *Software) Acquire() { s.mu.Lock() }
func (s *Software) Release() { s.mu.Unlock() }

func (s *Software) SerialNumber() string {
	return hex.EncodeToString(s.serial[:])
}

func (s *Software) Sign(message string) (string, error) {
	sig := ed25519.Sign(s.priv, []byte(message))
	return hex.EncodeToString(sig), nil
}
