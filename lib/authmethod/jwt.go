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
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/vaultkeeper/lib/authstep"
)

// JWTOptions configures the generic JWT flow.
type JWTOptions struct {
	// Path is the method mount path. Defaults to "jwt".
	Path string
	// Role is the server-side role to authenticate as. Required.
	Role string
	// JWT supplies the token to present. Required.
	JWT Supplier
}

// NewJWT builds the generic JWT flow.
func NewJWT(opts JWTOptions) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "jwt"
	}
	switch {
	case opts.Role == "":
		return nil, trace.BadParameter("jwt flow requires a role")
	case opts.JWT == nil:
		return nil, trace.BadParameter("jwt flow requires a JWT supplier")
	}
	step := authstep.LoginFunc(authstep.FromSupplier(opts.JWT), loginPath(opts.Path), func(tok string) (any, error) {
		return map[string]string{"role": opts.Role, "jwt": tok}, nil
	})
	return newMethod("jwt", step), nil
}

// cachedJWTLeeway is how long before its expiry a cached JWT is discarded.
const cachedJWTLeeway = 30 * time.Second

// CachedJWT wraps a supplier so the underlying credential is produced only
// when the previously supplied JWT is absent or near its exp claim. The
// claim is read without signature verification; validity is the server's
// concern.
func CachedJWT(next Supplier, clock clockwork.Clock) Supplier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var mu sync.Mutex
	var cached string
	var expiry time.Time

	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != "" && clock.Now().Add(cachedJWTLeeway).Before(expiry) {
			return cached, nil
		}

		raw, err := next()
		if err != nil {
			return "", err
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return "", trace.Wrap(err, "parsing supplied JWT")
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return "", trace.BadParameter("supplied JWT carries no exp claim")
		}
		cached, expiry = raw, exp.Time
		return cached, nil
	}
}
