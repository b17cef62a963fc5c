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

package token

import (
	"fmt"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
)

func TestSessionToken(t *testing.T) {
	tok, err := NewSessionToken("s.abcdef")
	require.NoError(t, err)
	require.Equal(t, "s.abcdef", tok.Value())
	require.NotContains(t, fmt.Sprint(tok), "abcdef")

	_, err = NewSessionToken("")
	require.True(t, trace.IsBadParameter(err))
}

func TestLoginTokenDefaults(t *testing.T) {
	tok := Of("my-token")
	require.Equal(t, "my-token", tok.Value())
	require.False(t, tok.IsRenewable())
	require.Zero(t, tok.LeaseDuration())
	require.Empty(t, tok.Accessor())

	// Tokens without a reported type default to service.
	require.True(t, tok.IsServiceToken())
	require.False(t, tok.IsBatchToken())
}

func TestLoginTokenFactories(t *testing.T) {
	leased := OfLeased("my-token", 30*time.Second)
	require.False(t, leased.IsRenewable())
	require.Equal(t, 30*time.Second, leased.LeaseDuration())

	renewable := Renewable("my-token", time.Minute)
	require.True(t, renewable.IsRenewable())
	require.Equal(t, time.Minute, renewable.LeaseDuration())
}

func TestBuilder(t *testing.T) {
	tests := []struct {
		name      string
		build     func() (LoginToken, error)
		assertErr require.ErrorAssertionFunc
		check     func(t *testing.T, tok LoginToken)
	}{
		{
			name: "batch token",
			build: func() (LoginToken, error) {
				return NewBuilder("tok").Type(TypeBatch).Build()
			},
			assertErr: require.NoError,
			check: func(t *testing.T, tok LoginToken) {
				require.True(t, tok.IsBatchToken())
				require.False(t, tok.IsServiceToken())
			},
		},
		{
			name: "accessor and lease",
			build: func() (LoginToken, error) {
				return NewBuilder("tok").
					Accessor("accessor-id").
					LeaseDuration(456 * time.Second).
					Renewable(true).
					Type(TypeService).
					Build()
			},
			assertErr: require.NoError,
			check: func(t *testing.T, tok LoginToken) {
				require.Equal(t, "accessor-id", tok.Accessor())
				require.Equal(t, 456*time.Second, tok.LeaseDuration())
				require.True(t, tok.IsRenewable())
				require.True(t, tok.IsServiceToken())
			},
		},
		{
			name: "empty value rejected",
			build: func() (LoginToken, error) {
				return NewBuilder("").Build()
			},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.True(t, trace.IsBadParameter(err))
			},
		},
		{
			name: "negative lease rejected",
			build: func() (LoginToken, error) {
				return NewBuilder("tok").LeaseDuration(-time.Second).Build()
			},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.True(t, trace.IsBadParameter(err))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := tc.build()
			tc.assertErr(t, err)
			if tc.check != nil {
				tc.check(t, tok)
			}
		})
	}
}

func TestEqualityAndRedaction(t *testing.T) {
	a := Renewable("same-secret", time.Minute)
	b := Of("same-secret")
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(Of("other")))

	out := fmt.Sprint(a)
	require.NotContains(t, out, "same-secret")
	require.Contains(t, out, "renewable")
}
