// Package secrets stores LLM API keys in the OS keyring.
package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/extrophi/voicejournal/internal/apperr"
)

const service = "voicejournal"

// GetAPIKey returns the stored key for a provider ("anthropic", "openai").
func GetAPIKey(provider string) (string, error) {
	key, err := keyring.Get(service, provider)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", apperr.E(apperr.KindNotFound, "no API key stored for %s; run 'voicejournal key set %s'", provider, provider)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, err, "reading %s key from keyring", provider)
	}
	return key, nil
}

// SetAPIKey stores a provider key.
func SetAPIKey(provider, key string) error {
	if err := keyring.Set(service, provider, key); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "storing %s key in keyring", provider)
	}
	return nil
}

// DeleteAPIKey removes a provider key. Missing keys are not an error.
func DeleteAPIKey(provider string) error {
	err := keyring.Delete(service, provider)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return apperr.Wrap(apperr.KindIO, err, "deleting %s key from keyring", provider)
	}
	return nil
}
