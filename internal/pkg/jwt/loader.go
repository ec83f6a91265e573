// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
)

// Config points at the public key of the auth service that issues tokens.
// This service only verifies; it never signs.
type Config struct {
	PubPath  string
	Issuer   string
	Audience string
}

func LoadVerifier(cfg Config) (*Verifier, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
	}
	return NewVerifier(pub, cfg.Issuer, cfg.Audience), nil
}
