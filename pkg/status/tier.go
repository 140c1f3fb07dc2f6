// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package status

import (
	"strings"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// Tier buckets a target by how heavily it is used, which drives how often it
// is probed and how urgently it is re-probed after failures.
type Tier string

const (
	TierCritical Tier = "critical"
	TierPopular  Tier = "popular"
	TierStandard Tier = "standard"
	TierOnDemand Tier = "on_demand"
)

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierPopular, TierStandard, TierOnDemand:
		return true
	default:
		return false
	}
}

// ParseTier parses a case-insensitive string into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(s))
	if !t.Valid() {
		return "", pharoserr.Errorf(pharoserr.CodeServerRequestInvalid,
			"invalid tier: %q", s)
	}
	return t, nil
}
