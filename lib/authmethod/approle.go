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
	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/authstep"
	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

// AppRoleOptions configures the role-id/secret-id flow. The role id is
// either given directly or pulled from the server using an initial token
// ("pull mode"); the secret id is given directly, pulled, unwrapped from a
// wrapping token, or omitted for bind-secret-less roles.
type AppRoleOptions struct {
	// Path is the method mount path. Defaults to "approle".
	Path string
	// RoleID is the role id presented at login. Mutually exclusive with
	// pull mode for the role id.
	RoleID string
	// SecretID is the secret id presented at login.
	SecretID string
	// WrappedSecretIDToken is a wrapping token whose cubbyhole response
	// unwraps to the secret id.
	WrappedSecretIDToken string
	// PullSecretID generates a fresh secret id through the role endpoint
	// using InitialToken.
	PullSecretID bool
	// RoleName names the role for pull-mode requests.
	RoleName string
	// InitialToken authenticates pull-mode requests.
	InitialToken string
}

// CheckAndSetDefaults validates the option combination.
func (o *AppRoleOptions) CheckAndSetDefaults() error {
	if o.Path == "" {
		o.Path = "approle"
	}
	pull := o.RoleName != "" && o.InitialToken != ""
	if o.RoleID == "" && !pull {
		return trace.BadParameter("appRole requires a role id or a role name with an initial token for pull mode")
	}
	sources := 0
	if o.SecretID != "" {
		sources++
	}
	if o.WrappedSecretIDToken != "" {
		sources++
	}
	if o.PullSecretID {
		sources++
	}
	if sources > 1 {
		return trace.BadParameter("appRole accepts at most one of secret id, wrapped secret id, or pull mode")
	}
	if o.PullSecretID && !pull {
		return trace.BadParameter("appRole pull mode requires a role name and an initial token")
	}
	return nil
}

// NewAppRole builds the approle flow.
func NewAppRole(opts AppRoleOptions) (*Method, error) {
	if err := opts.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	roleID := opts.roleIDStep()
	secretID := opts.secretIDStep()

	var body authstep.Step[map[string]string]
	if secretID == nil {
		body = authstep.Map(roleID, func(id string) (map[string]string, error) {
			return map[string]string{"role_id": id}, nil
		})
	} else {
		pair := authstep.Zip(roleID, secretID)
		body = authstep.Map(pair, func(p authstep.Pair[string, string]) (map[string]string, error) {
			return map[string]string{"role_id": p.Left, "secret_id": p.Right}, nil
		})
	}

	return newMethod("approle", authstep.Login(body, loginPath(opts.Path))), nil
}

func (o *AppRoleOptions) roleIDStep() authstep.Step[string] {
	if o.RoleID != "" {
		return authstep.Just(o.RoleID)
	}
	req := transport.Request{
		Method: "GET",
		Path:   "auth/" + o.Path + "/role/" + o.RoleName + "/role-id",
	}.WithToken(o.InitialToken)
	return authstep.Map(authstep.FromRequest(req), func(s *transport.Secret) (string, error) {
		id, err := s.DataString("role_id")
		return id, trace.Wrap(err)
	})
}

func (o *AppRoleOptions) secretIDStep() authstep.Step[string] {
	switch {
	case o.SecretID != "":
		return authstep.Just(o.SecretID)
	case o.WrappedSecretIDToken != "":
		return unwrapSecretIDStep(o.WrappedSecretIDToken)
	case o.PullSecretID:
		req := transport.Request{
			Method: "POST",
			Path:   "auth/" + o.Path + "/role/" + o.RoleName + "/secret-id",
		}.WithToken(o.InitialToken)
		return authstep.Map(authstep.FromRequest(req), func(s *transport.Secret) (string, error) {
			id, err := s.DataString("secret_id")
			return id, trace.Wrap(err)
		})
	default:
		return nil
	}
}

// StaticTokenOptions configures the trivial flow that presents an
// operator-provided token.
type StaticTokenOptions struct {
	// Token is the session token.
	Token string
}

// NewStaticToken builds the static token flow. The token is yielded as a
// bare session token; the session manager learns its lease metadata through
// a self-lookup.
func NewStaticToken(opts StaticTokenOptions) (*Method, error) {
	tok, err := token.NewSessionToken(opts.Token)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return newMethod("token", authstep.Just[token.Token](tok)), nil
}
