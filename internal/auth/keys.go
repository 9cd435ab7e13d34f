package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumina-home/lumina-core/internal/infrastructure/config"
)

// KeyManager holds the two RSA key pairs used for token signing: one pair
// for access tokens and a separate pair for refresh tokens. Keys are loaded
// once at startup; a missing or unparsable key is a fatal configuration
// error.
type KeyManager struct {
	accessPrivate  *rsa.PrivateKey
	accessPublic   *rsa.PublicKey
	refreshPrivate *rsa.PrivateKey
	refreshPublic  *rsa.PublicKey
}

// LoadKeys reads both RSA key pairs from the configured PEM files.
func LoadKeys(cfg config.KeysConfig) (*KeyManager, error) {
	km := &KeyManager{}

	var err error
	if km.accessPrivate, err = loadPrivateKey(filepath.Join(cfg.Directory, cfg.PrivateAccess)); err != nil {
		return nil, fmt.Errorf("loading access private key: %w", err)
	}
	if km.accessPublic, err = loadPublicKey(filepath.Join(cfg.Directory, cfg.PublicAccess)); err != nil {
		return nil, fmt.Errorf("loading access public key: %w", err)
	}
	if km.refreshPrivate, err = loadPrivateKey(filepath.Join(cfg.Directory, cfg.PrivateRefresh)); err != nil {
		return nil, fmt.Errorf("loading refresh private key: %w", err)
	}
	if km.refreshPublic, err = loadPublicKey(filepath.Join(cfg.Directory, cfg.PublicRefresh)); err != nil {
		return nil, fmt.Errorf("loading refresh public key: %w", err)
	}

	return km, nil
}

// AccessPrivate returns the signing key for access tokens.
func (km *KeyManager) AccessPrivate() *rsa.PrivateKey { return km.accessPrivate }

// AccessPublic returns the verification key for access tokens.
func (km *KeyManager) AccessPublic() *rsa.PublicKey { return km.accessPublic }

// RefreshPrivate returns the signing key for refresh tokens.
func (km *KeyManager) RefreshPrivate() *rsa.PrivateKey { return km.refreshPrivate }

// RefreshPublic returns the verification key for refresh tokens.
func (km *KeyManager) RefreshPublic() *rsa.PublicKey { return km.refreshPublic }

// minKeyBits is the smallest RSA modulus accepted for token signing.
const minKeyBits = 2048

// loadPrivateKey reads an RSA private key from a PEM file.
// PKCS#8 is the expected encoding; PKCS#1 is accepted for older key files.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: key is not RSA", path)
		}
		return checkKeySize(path, rsaKey)
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing private key: %w", path, err)
	}
	return checkKeySize(path, rsaKey)
}

// checkKeySize rejects RSA keys below the accepted modulus size.
func checkKeySize(path string, key *rsa.PrivateKey) (*rsa.PrivateKey, error) {
	if key.N.BitLen() < minKeyBits {
		return nil, fmt.Errorf("%s: key is %d bits, minimum is %d", path, key.N.BitLen(), minKeyBits)
	}
	return key, nil
}

// loadPublicKey reads an RSA public key from a PEM file (PKIX encoding).
func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing public key: %w", path, err)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: key is not RSA", path)
	}
	if rsaKey.N.BitLen() < minKeyBits {
		return nil, fmt.Errorf("%s: key is %d bits, minimum is %d", path, rsaKey.N.BitLen(), minKeyBits)
	}
	return rsaKey, nil
}
