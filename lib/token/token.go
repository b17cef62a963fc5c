/*
 * Vaultkeeper
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package token models the session credentials handed out by the secrets
// service. A bare [SessionToken] carries only the secret string; a
// [LoginToken] additionally carries the lease metadata returned by a login
// or renewal endpoint.
package token

import (
	"time"

	"github.com/gravitational/trace"
)

// Type is the server-side token type.
type Type string

const (
	// TypeService tokens are renewable and revocable.
	TypeService Type = "service"
	// TypeBatch tokens are neither renewable nor revocable; their lifecycle
	// ends solely at their TTL.
	TypeBatch Type = "batch"
	// TypeUnknown is used when the server did not report a type. Callers
	// treat unknown tokens as service tokens.
	TypeUnknown Type = ""
)

// Token is a credential presented in the auth header of every authenticated
// request. Implementations must never print the secret value.
type Token interface {
	// Value returns the secret token string.
	Value() string
}

// SessionToken is a bare token with no server metadata attached.
type SessionToken struct {
	value string
}

// NewSessionToken wraps a raw token string.
func NewSessionToken(value string) (SessionToken, error) {
	if value == "" {
		return SessionToken{}, trace.BadParameter("token value must not be empty")
	}
	return SessionToken{value: value}, nil
}

// Value returns the secret token string.
func (t SessionToken) Value() string { return t.value }

// String implements fmt.Stringer without revealing the token value.
func (t SessionToken) String() string { return "SessionToken(<redacted>)" }

// LoginToken is a session token plus the lease metadata the server returned
// from a login, renewal, or self-lookup endpoint.
type LoginToken struct {
	value         string
	accessor      string
	leaseDuration time.Duration
	renewable     bool
	typ           Type
}

// Of returns a non-renewable login token with no lease.
func Of(value string) LoginToken {
	return LoginToken{value: value}
}

// OfLeased returns a non-renewable login token with the given lease duration.
func OfLeased(value string, leaseDuration time.Duration) LoginToken {
	return LoginToken{value: value, leaseDuration: leaseDuration}
}

// Renewable returns a renewable login token with the given lease duration.
func Renewable(value string, leaseDuration time.Duration) LoginToken {
	return LoginToken{value: value, leaseDuration: leaseDuration, renewable: true}
}

// Value returns the secret token string.
func (t LoginToken) Value() string { return t.value }

// Accessor returns the server-issued accessor handle, if any.
func (t LoginToken) Accessor() string { return t.accessor }

// LeaseDuration returns the lease duration. Zero means the token is not
// leased.
func (t LoginToken) LeaseDuration() time.Duration { return t.leaseDuration }

// IsRenewable reports whether the server marked the token renewable.
func (t LoginToken) IsRenewable() bool { return t.renewable }

// TokenType returns the server-reported token type.
func (t LoginToken) TokenType() Type { return t.typ }

// IsServiceToken reports whether the token is a service token. Tokens with
// no reported type default to service.
func (t LoginToken) IsServiceToken() bool {
	return t.typ == TypeService || t.typ == TypeUnknown
}

// IsBatchToken reports whether the token is a batch token.
func (t LoginToken) IsBatchToken() bool { return t.typ == TypeBatch }

// Equal compares two tokens by their secret string only.
func (t LoginToken) Equal(other Token) bool {
	return other != nil && t.value == other.Value()
}

// String implements fmt.Stringer without revealing the token value.
func (t LoginToken) String() string {
	s := "LoginToken(<redacted>"
	if t.accessor != "" {
		s += ", accessor=" + t.accessor
	}
	if t.renewable {
		s += ", renewable"
	}
	s += ", lease=" + t.leaseDuration.String() + ")"
	return s
}

// Builder assembles a LoginToken field by field.
type Builder struct {
	tok LoginToken
}

// NewBuilder starts building a login token around the given secret value.
func NewBuilder(value string) *Builder {
	return &Builder{tok: LoginToken{value: value}}
}

// LeaseDuration sets the lease duration.
func (b *Builder) LeaseDuration(d time.Duration) *Builder {
	b.tok.leaseDuration = d
	return b
}

// Renewable marks the token renewable.
func (b *Builder) Renewable(renewable bool) *Builder {
	b.tok.renewable = renewable
	return b
}

// Accessor sets the accessor handle.
func (b *Builder) Accessor(accessor string) *Builder {
	b.tok.accessor = accessor
	return b
}

// Type sets the token type. Unrecognized values are kept verbatim and
// treated as neither service nor batch by the predicates.
func (b *Builder) Type(typ Type) *Builder {
	b.tok.typ = typ
	return b
}

// Build validates and returns the token.
func (b *Builder) Build() (LoginToken, error) {
	if b.tok.value == "" {
		return LoginToken{}, trace.BadParameter("token value must not be empty")
	}
	if b.tok.leaseDuration < 0 {
		return LoginToken{}, trace.BadParameter("lease duration must not be negative")
	}
	return b.tok, nil
}
