// Package pin gates mutating operations behind a local PIN. The PIN never
// leaves the process: only its argon2id digest is persisted, salted per
// device.
package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/argon2"

	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/keystore"
)

var (
	ErrWrongPIN = errors.New("wrong pin")
	ErrTooShort = errors.New("pin must be at least 4 digits")
	// ErrLocked is returned by gated operations while no successful Verify
	// has happened this run.
	ErrLocked = errors.New("daemon is locked")
)

const (
	minLength   = 4
	argonTime   = 3
	argonMemory = 64 * 1024
	argonLanes  = 2
	digestLen   = 32
	saltLen     = 16
)

type record struct {
	Salt   []byte `json:"salt"`
	Digest []byte `json:"digest"`
}

// Gate holds the persisted PIN digest and the in-memory unlocked flag.
type Gate struct {
	ks       keystore.Store
	unlocked atomic.Bool
}

func NewGate(ks keystore.Store) *Gate {
	return &Gate{ks: ks}
}

// IsSet reports whether a PIN has been configured.
func (g *Gate) IsSet() (bool, error) {
	_, ok, err := g.ks.Get(keystore.KeyPIN)
	return ok, err
}

// Set stores the digest of pin and unlocks the gate.
func (g *Gate) Set(pin string) error {
	if len(pin) < minLength {
		return ErrTooShort
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	rec := record{Salt: salt, Digest: digest(pin, salt)}
	if err := keystore.PutJSON(g.ks, keystore.KeyPIN, rec); err != nil {
		return fmt.Errorf("persist pin: %w", err)
	}
	g.unlocked.Store(true)
	return nil
}

// Verify checks pin against the stored digest and unlocks the gate on match.
func (g *Gate) Verify(pin string) error {
	var rec record
	ok, err := keystore.GetJSON(g.ks, keystore.KeyPIN, &rec)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no pin configured")
	}
	if subtle.ConstantTimeCompare(digest(pin, rec.Salt), rec.Digest) != 1 {
		return ErrWrongPIN
	}
	g.unlocked.Store(true)
	return nil
}

// Unlocked reports whether a successful Set or Verify happened this run.
func (g *Gate) Unlocked() bool {
	return g.unlocked.Load()
}

// Lock drops the unlocked state.
func (g *Gate) Lock() {
	g.unlocked.Store(false)
}

func digest(pin string, salt []byte) []byte {
	material := append([]byte(constants.PINLabel+":"), pin...)
	return argon2.IDKey(material, salt, argonTime, argonMemory, argonLanes, digestLen)
}
