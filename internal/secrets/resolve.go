// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package secrets

import (
	"errors"
	"strings"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/spf13/viper"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
// Returns an error if the URI is malformed.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", pharoserr.Errorf(pharoserr.CodeSecretRefInvalid, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", pharoserr.Errorf(pharoserr.CodeSecretRefInvalid,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Returns the original value unchanged if it is not a keyring URI.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", pharoserr.Wrapf(err, pharoserr.CodeSecretResolveFailure,
			"resolving keyring URI %q", value)
	}

	return secret, nil
}

// ResolveViperSecrets walks all keys in a Viper instance and resolves any
// string values that use the keyring:// URI scheme. This is a post-load
// resolution step, not a Viper decoder hook.
//
// A reference that cannot be resolved is a config error: probing a gateway
// with a literal "keyring://..." string as the credential would only
// surface as auth failures much later. All failures are collected so the
// operator sees every broken reference at once.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			errs = append(errs, pharoserr.Wrapf(err, pharoserr.CodeSecretResolveFailure,
				"config key %s references %s", key, val))
			continue
		}

		v.Set(key, resolved)
	}

	if len(errs) > 0 {
		return pharoserr.Wrapf(errors.Join(errs...), pharoserr.CodeSecretResolveFailure,
			"resolving config secrets")
	}
	return nil
}
