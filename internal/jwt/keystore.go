// Package jwt firma y valida los JWT del gateway (access e ID tokens) con
// Ed25519. El keystore mantiene estados active/retiring para que la rotación
// de claves no invalide tokens en vuelo: retiring sigue verificando durante
// la ventana de gracia.
package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type KeyStatus string

const (
	KeyActive   KeyStatus = "active"
	KeyRetiring KeyStatus = "retiring"
	KeyRetired  KeyStatus = "retired"
)

// SigningKey es un par Ed25519 con su estado de rotación.
type SigningKey struct {
	KID        string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey // nil para claves solo-verificación
	Status     KeyStatus
	CreatedAt  time.Time
	RotatedAt  *time.Time
}

var (
	ErrNoActiveKey = errors.New("jwt: no active signing key")
	ErrKeyNotFound = errors.New("jwt: kid not found")
)

// Keystore mantiene las claves de firma en memoria.
type Keystore struct {
	mu   sync.RWMutex
	keys []SigningKey
}

// NewKeystore genera un keystore con una clave activa recién creada.
func NewKeystore() (*Keystore, error) {
	ks := &Keystore{}
	if _, err := ks.generate(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *Keystore) generate() (string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	kid := uuid.NewString()
	ks.mu.Lock()
	ks.keys = append(ks.keys, SigningKey{
		KID:        kid,
		PublicKey:  pub,
		PrivateKey: priv,
		Status:     KeyActive,
		CreatedAt:  time.Now().UTC(),
	})
	ks.mu.Unlock()
	return kid, nil
}

// Active retorna la clave activa actual.
func (ks *Keystore) Active() (*SigningKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for i := range ks.keys {
		if ks.keys[i].Status == KeyActive {
			k := ks.keys[i]
			return &k, nil
		}
	}
	return nil, ErrNoActiveKey
}

// PublicKeyByKID busca la pubkey por kid entre active y retiring.
func (ks *Keystore) PublicKeyByKID(kid string) (ed25519.PublicKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for i := range ks.keys {
		k := &ks.keys[i]
		if k.KID == kid && (k.Status == KeyActive || k.Status == KeyRetiring) {
			return k.PublicKey, nil
		}
	}
	return nil, ErrKeyNotFound
}

// Rotate pasa la activa a retiring y genera una nueva activa.
// Retorna el KID de la nueva clave.
func (ks *Keystore) Rotate() (string, error) {
	now := time.Now().UTC()
	ks.mu.Lock()
	for i := range ks.keys {
		if ks.keys[i].Status == KeyActive {
			ks.keys[i].Status = KeyRetiring
			ks.keys[i].RotatedAt = &now
		}
	}
	ks.mu.Unlock()
	return ks.generate()
}

// Retire marca como retired toda clave retiring más vieja que grace.
func (ks *Keystore) Retire(grace time.Duration) {
	cut := time.Now().UTC().Add(-grace)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for i := range ks.keys {
		k := &ks.keys[i]
		if k.Status == KeyRetiring && k.RotatedAt != nil && k.RotatedAt.Before(cut) {
			k.Status = KeyRetired
		}
	}
}

// Verifying retorna las claves que aún validan (active + retiring).
func (ks *Keystore) Verifying() []SigningKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	var out []SigningKey
	for _, k := range ks.keys {
		if k.Status == KeyActive || k.Status == KeyRetiring {
			out = append(out, k)
		}
	}
	return out
}
