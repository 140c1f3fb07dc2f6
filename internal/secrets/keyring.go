// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/zalando/go-keyring"
)

// keysIndexSuffix is appended to the service name to form the key under
// which the JSON index of stored key names lives. go-keyring cannot
// enumerate keys, so List reads this index instead.
const keysIndexSuffix = "::keys-index"

// KeyringStore implements Store on the OS keyring via zalando/go-keyring:
// Keychain on macOS, secret-service (D-Bus) on Linux, Credential Manager
// on Windows.
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// requireServiceKey rejects empty coordinates before they reach the
// keyring, which would otherwise store under confusing blank names.
func requireServiceKey(op, service, key string) error {
	if service == "" {
		return pharoserr.Errorf(pharoserr.CodeSecretRefInvalid, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return pharoserr.Errorf(pharoserr.CodeSecretRefInvalid, "secret %s: key must not be empty", op)
	}
	return nil
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := requireServiceKey("store", service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	return s.addToIndex(service, key)
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := requireServiceKey("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", pharoserr.Errorf(pharoserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", pharoserr.Wrapf(err, pharoserr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := requireServiceKey("delete", service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return pharoserr.Errorf(pharoserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return pharoserr.Wrapf(err, pharoserr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	return s.removeFromIndex(service, key)
}

func (s *KeyringStore) List(service string) ([]string, error) {
	return s.loadIndex(service)
}

// loadIndex reads the JSON key index for a service. A missing index means
// nothing was ever stored; that is an empty list, not an error.
func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+keysIndexSuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, pharoserr.Wrapf(err, pharoserr.CodeSecretListFailure, "loading key index for service %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, pharoserr.Wrapf(err, pharoserr.CodeSecretListFailure, "decoding key index for service %s", service)
	}

	return keys, nil
}

// saveIndex writes the JSON key index, removing the index entry entirely
// when the last key is gone.
func (s *KeyringStore) saveIndex(service string, keys []string) error {
	indexKey := service + keysIndexSuffix

	if len(keys) == 0 {
		if delErr := keyring.Delete(service, indexKey); delErr != nil && !errors.Is(delErr, keyring.ErrNotFound) {
			slog.Debug("failed to clean up empty key index", "service", service, "error", delErr)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeSecretListFailure, "encoding key index for service %s", service)
	}

	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeSecretListFailure, "saving key index for service %s", service)
	}

	return nil
}

// addToIndex records a key in the service's index, idempotently.
func (s *KeyringStore) addToIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if k == key {
			return nil
		}
	}

	return s.saveIndex(service, append(keys, key))
}

// removeFromIndex drops a key from the service's index.
func (s *KeyringStore) removeFromIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}

	filtered := keys[:0]
	for _, k := range keys {
		if k != key {
			filtered = append(filtered, k)
		}
	}

	return s.saveIndex(service, filtered)
}
