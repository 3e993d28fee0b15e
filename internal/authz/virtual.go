// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package authz

import (
	"errors"
	"regexp"
	"strings"
)

// VirtualScheme prefixes references to cloud-hosted files.
const VirtualScheme = "cloud://"

var (
	providerPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	fileIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._~-]{0,255}$`)
)

// ErrMalformedVirtual is returned for cloud references with a bad shape.
var ErrMalformedVirtual = errors.New("malformed virtual path")

// VirtualRef identifies a file held by a cloud provider.
type VirtualRef struct {
	Provider string
	ID       string
}

func (r VirtualRef) String() string {
	return VirtualScheme + r.Provider + "/" + r.ID
}

// IsVirtual reports whether p uses the cloud scheme, well formed or not.
func IsVirtual(p string) bool {
	return strings.HasPrefix(p, VirtualScheme)
}

// ValidProvider reports whether name is usable as a cloud provider name.
func ValidProvider(name string) bool {
	return providerPattern.MatchString(name)
}

// ParseVirtual splits cloud://<provider>/<id>.
func ParseVirtual(p string) (VirtualRef, error) {
	rest, ok := strings.CutPrefix(p, VirtualScheme)
	if !ok {
		return VirtualRef{}, ErrMalformedVirtual
	}
	provider, id, ok := strings.Cut(rest, "/")
	if !ok || !providerPattern.MatchString(provider) || !fileIDPattern.MatchString(id) {
		return VirtualRef{}, ErrMalformedVirtual
	}
	return VirtualRef{Provider: provider, ID: id}, nil
}
