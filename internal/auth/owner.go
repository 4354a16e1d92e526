// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"crypto/subtle"
	"fmt"
)

// OwnerCredential is the single process-configured owner account. The
// password is hashed once at startup so it never sits in memory in clear
// form after construction.
type OwnerCredential struct {
	username     string
	passwordHash []byte
	hasher       BcryptHasher
}

// NewOwnerCredential hashes password with hasher.
func NewOwnerCredential(username, password string, hasher BcryptHasher) (*OwnerCredential, error) {
	if username == "" {
		return nil, fmt.Errorf("owner username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("owner password is required")
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash owner password: %w", err)
	}
	return &OwnerCredential{username: username, passwordHash: hash, hasher: hasher}, nil
}

// Username returns the owner name.
func (o *OwnerCredential) Username() string { return o.username }

// Is reports whether username names the owner. Constant time.
func (o *OwnerCredential) Is(username string) bool {
	return subtle.ConstantTimeCompare([]byte(username), []byte(o.username)) == 1
}

// Verify checks both fields. The password comparison always runs so a wrong
// username costs the same as a wrong password.
func (o *OwnerCredential) Verify(username, password string) bool {
	usernameMatch := o.Is(username)
	passwordMatch := o.hasher.Compare(o.passwordHash, password)
	return usernameMatch && passwordMatch
}
