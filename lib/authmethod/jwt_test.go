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
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// makeJWT builds an unsigned JWT carrying only an exp claim.
func makeJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"exp": exp.Unix()})
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + "."
}

func TestCachedJWT(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	supplier := CachedJWT(func() (string, error) {
		calls++
		return makeJWT(t, clock.Now().Add(10*time.Minute)), nil
	}, clock)

	first, err := supplier()
	require.NoError(t, err)
	second, err := supplier()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls, "fresh JWT is served from cache")

	// Within the leeway window before exp the credential is refreshed.
	clock.Advance(10*time.Minute - 20*time.Second)
	third, err := supplier()
	require.NoError(t, err)
	require.NotEqual(t, first, third)
	require.Equal(t, 2, calls)
}

func TestCachedJWTRequiresExpClaim(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	supplier := CachedJWT(StaticSupplier(header+"."+payload+"."), clockwork.NewFakeClock())

	_, err := supplier()
	require.ErrorContains(t, err, "exp claim")
}
