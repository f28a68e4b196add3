package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/target/healwright/internal/data/cryptoutil"
)

// CreateTokenCipher builds the cipher for stored access tokens. A 64-character hex key is used
// directly; anything else is hashed to 32 bytes. An empty key reads tokens as plaintext.
//
//nolint:ireturn // callers only need the interface
func CreateTokenCipher(key string, logger *slog.Logger) cryptoutil.TokenCipher {
	if key == "" {
		if logger != nil {
			logger.Warn("token encryption key is empty; access tokens are read as plaintext")
		}
		return cryptoutil.Plaintext{}
	}
	c, err := cryptoutil.NewAESGCM(tokenKeyBytes(key))
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create token cipher; access tokens are read as plaintext", "error", err)
		}
		return cryptoutil.Plaintext{}
	}
	return c
}

func tokenKeyBytes(key string) []byte {
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}
