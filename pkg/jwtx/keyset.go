package jwtx

import (
	"crypto/rsa"
	"errors"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds public verification keys in memory. The gateway uses it to
// publish its JWKS, downstream services to verify user-context assertions.
type KeySet struct {
	mu  sync.RWMutex
	jks JWKS
	pub map[string]*rsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		pub: make(map[string]*rsa.PublicKey),
	}
}

// AddSigner registers a Signer’s public JWK into the KeySet.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddPublicKey registers an RSA public key under kid.
func (k *KeySet) AddPublicKey(kid string, pub *rsa.PublicKey) error {
	return k.AddJWK(NewRSAJWK(kid, "sig", "RS256", pub))
}

// AddJWK adds a JWK to the KeySet, replacing any key with the same kid.
func (k *KeySet) AddJWK(j JWK) error {
	if j.Kid == "" {
		return errors.New("jwtx: jwk without kid")
	}
	key, err := j.RSAPublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.pub[j.Kid]; exists {
		keys := k.jks.Keys[:0]
		for _, existing := range k.jks.Keys {
			if existing.Kid != j.Kid {
				keys = append(keys, existing)
			}
		}
		k.jks.Keys = keys
	}
	k.pub[j.Kid] = key
	k.jks.Keys = append(k.jks.Keys, j)
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// PublicJWKS returns a snapshot of the KeySet's JWKS for HTTP serving.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jks.Keys...)}
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// ResetFromJWKS replaces all keys from a JWKS, e.g. one fetched from the
// gateway's /.well-known/jwks.json.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	newMap := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, j := range jwks.Keys {
		key, err := j.RSAPublicKey()
		if err != nil {
			return err
		}
		newMap[j.Kid] = key
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.pub = newMap
	k.jks = JWKS{Keys: append([]JWK(nil), jwks.Keys...)}
	return nil
}
