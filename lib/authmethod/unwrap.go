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

package authmethod

import (
	"encoding/json"

	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/authstep"
	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

// unwrapPath is the cubbyhole endpoint at which wrapping tokens are
// exchanged for the wrapped payload.
const unwrapPath = "cubbyhole/response"

// unwrapEnvelope parses the nested response a wrapping exchange carries in
// its data.response field.
func unwrapEnvelope(s *transport.Secret) (*transport.Secret, error) {
	raw, err := s.DataString("response")
	if err != nil {
		return nil, trace.Wrap(err, "unwrapping response")
	}
	var nested transport.Secret
	if err := json.Unmarshal([]byte(raw), &nested); err != nil {
		return nil, trace.Wrap(err, "decoding unwrapped response")
	}
	return &nested, nil
}

// unwrapRequestStep fetches the cubbyhole response with the wrapping token
// in the auth header.
func unwrapRequestStep(wrappingToken string) authstep.Step[*transport.Secret] {
	req := transport.Request{Method: "GET", Path: unwrapPath}.WithToken(wrappingToken)
	return authstep.FromRequest(req)
}

// unwrapSecretIDStep yields the secret id held inside a wrapped response.
func unwrapSecretIDStep(wrappingToken string) authstep.Step[string] {
	return authstep.Map(unwrapRequestStep(wrappingToken), func(s *transport.Secret) (string, error) {
		nested, err := unwrapEnvelope(s)
		if err != nil {
			return "", trace.Wrap(err)
		}
		id, err := nested.DataString("secret_id")
		return id, trace.Wrap(err)
	})
}

// WrappedTokenOptions configures the flow that exchanges a wrapping token
// for the real session token it wraps.
type WrappedTokenOptions struct {
	// Token is the wrapping token.
	Token string
}

// NewWrappedToken builds the wrapped-token flow. When the unwrapped
// response carries an auth block, its metadata is kept; otherwise the data
// block must hold exactly one value, the token itself, which is yielded
// bare so the session manager performs a self-lookup.
func NewWrappedToken(opts WrappedTokenOptions) (*Method, error) {
	if opts.Token == "" {
		return nil, trace.BadParameter("wrapped token flow requires a wrapping token")
	}
	step := authstep.Map(unwrapRequestStep(opts.Token), func(s *transport.Secret) (token.Token, error) {
		nested, err := unwrapEnvelope(s)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		if nested.Auth != nil && nested.Auth.ClientToken != "" {
			tok, err := authstep.TokenFromAuth(nested.Auth)
			return tok, trace.Wrap(err)
		}
		return tokenFromUnwrappedData(nested.Data)
	})
	return newMethod("wrapped-token", step), nil
}

// tokenFromUnwrappedData extracts the token from the data block of an
// unwrapped response with no auth block. The block must hold exactly one
// entry.
func tokenFromUnwrappedData(data map[string]any) (token.Token, error) {
	if len(data) == 0 {
		return nil, trace.BadParameter("unwrapped response does not contain a token")
	}
	if len(data) > 1 {
		return nil, trace.BadParameter("unwrapped response does not contain an unique token")
	}
	for _, v := range data {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, trace.BadParameter("unwrapped response does not contain a token")
		}
		tok, err := token.NewSessionToken(s)
		return tok, trace.Wrap(err)
	}
	panic("unreachable")
}
