package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params holds the Argon2id cost parameters baked into newly minted
// hashes. Verification reads the parameters back out of the stored hash,
// so these can be raised later without invalidating existing credentials.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// defaultArgon2 follows the OWASP 2025 recommendation for Argon2id.
var defaultArgon2 = Argon2Params{
	Time:    3,
	Memory:  64 * 1024, // KiB
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// HashPassword hashes a plaintext password with Argon2id at the default
// cost and returns it in PHC string format.
func HashPassword(password string) (string, error) {
	return hashPassword(password, defaultArgon2)
}

func hashPassword(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return encodePHC(salt, key, p), nil
}

// VerifyPassword checks a plaintext password against a stored PHC hash.
// The cost parameters come from the hash itself and the comparison is
// constant time. Returns true on match.
func VerifyPassword(password, encodedHash string) (bool, error) {
	salt, key, p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	p.KeyLen = uint32(len(key)) //nolint:gosec // G115: hash length always fits uint32
	candidate := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// encodePHC renders an Argon2id hash in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func encodePHC(salt, key []byte, p Argon2Params) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// decodePHC parses a PHC string, rejecting anything that is not Argon2id
// at the library's version.
func decodePHC(encoded string) (salt, key []byte, p Argon2Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, p, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, p, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, p, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, p, fmt.Errorf("decoding salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, p, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, key, p, nil
}
