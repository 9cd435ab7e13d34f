// luminakeys generates the RSA key pairs Lumina Core signs tokens with.
//
// Two independent 2048-bit pairs are written as PEM files into the key
// directory from the configuration: one pair for access tokens, one for
// refresh tokens. Existing keys are never overwritten unless -force is
// given; regenerating keys invalidates every outstanding token.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumina-home/lumina-core/internal/infrastructure/config"
)

const keyBits = 2048

func main() {
	configPath := flag.String("config", "configs/config.yaml", "configuration file")
	force := flag.Bool("force", false, "overwrite existing key files")
	flag.Parse()

	if path := os.Getenv("LUMINA_CONFIG"); path != "" && !isFlagSet("config") {
		*configPath = path
	}

	if err := run(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(configPath string, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := cfg.Auth.Keys
	if err := os.MkdirAll(keys.Directory, 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	pairs := []struct {
		label    string
		privFile string
		pubFile  string
	}{
		{"access", keys.PrivateAccess, keys.PublicAccess},
		{"refresh", keys.PrivateRefresh, keys.PublicRefresh},
	}

	for _, pair := range pairs {
		privPath := filepath.Join(keys.Directory, pair.privFile)
		pubPath := filepath.Join(keys.Directory, pair.pubFile)

		if !force && (fileExists(privPath) || fileExists(pubPath)) {
			return fmt.Errorf("%s key files already exist in %s (use -force to overwrite; this invalidates all issued tokens)", pair.label, keys.Directory)
		}

		if err := generatePair(privPath, pubPath); err != nil {
			return fmt.Errorf("generating %s key pair: %w", pair.label, err)
		}
		fmt.Printf("wrote %s key pair: %s, %s\n", pair.label, privPath, pubPath)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// generatePair writes a fresh RSA key pair: PKCS#8 private key and PKIX
// public key, both PEM encoded. Private key files are owner-readable only.
func generatePair(privPath, pubPath string) error {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	return nil
}
