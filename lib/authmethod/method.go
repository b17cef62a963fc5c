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

// Package authmethod builds the step graphs for the supported
// authentication flows. Each flow is configured through an options struct
// that is validated eagerly; invalid combinations fail at construction, not
// at login time.
//
// Cryptographic collaborators (platform document signing, JWT minting) stay
// behind the [Supplier] abstraction: a flow only consumes the signed
// credential string.
package authmethod

import (
	"context"
	"os"
	"strings"

	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/authstep"
	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

// Supplier produces a credential string: a file's contents, a
// platform-signed assertion, a minted JWT. Suppliers are invoked once per
// login flow execution.
type Supplier func() (string, error)

// FileSupplier reads the credential from a file on every invocation.
func FileSupplier(path string) Supplier {
	return func() (string, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", trace.ConvertSystemError(err)
		}
		return strings.TrimSpace(string(b)), nil
	}
}

// StaticSupplier always returns the given value.
func StaticSupplier(value string) Supplier {
	return func() (string, error) { return value, nil }
}

// Method is a configured authentication flow: a name and the step graph
// that realizes it.
type Method struct {
	name string
	step authstep.Step[token.Token]
}

func newMethod(name string, step authstep.Step[token.Token]) *Method {
	return &Method{name: name, step: step}
}

// Name returns the flow name, e.g. "approle".
func (m *Method) Name() string { return m.name }

// Step returns the flow's step graph. The graph is immutable and may be
// executed any number of times.
func (m *Method) Step() authstep.Step[token.Token] { return m.step }

// Login drives the flow to completion on the given transport.
func (m *Method) Login(ctx context.Context, rt transport.RoundTripper) (token.Token, error) {
	tok, err := authstep.Execute(ctx, rt, m.step)
	return tok, trace.Wrap(err)
}

// loginPath resolves the login endpoint of a method mount.
func loginPath(mount string) string {
	return "auth/" + mount + "/login"
}
