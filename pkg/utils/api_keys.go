package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	apiKeyPrefix = "pp_"

	// APIKeyDisplayLen is how much of a key is kept in clear for listings.
	APIKeyDisplayLen = 10
)

// GenerateRandomKey returns length random bytes, URL-safe base64 encoded.
func GenerateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func GenerateAPIKey() (string, error) {
	key, err := GenerateRandomKey(24)
	if err != nil {
		return "", err
	}
	return apiKeyPrefix + key, nil
}

// HashAPIKey is the lookup form of an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the leading part of key shown in key listings.
func DisplayPrefix(key string) string {
	if len(key) <= APIKeyDisplayLen {
		return key
	}
	return key[:APIKeyDisplayLen]
}
