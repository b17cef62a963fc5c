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
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

type fakeTransport struct {
	mu       sync.Mutex
	routes   map[string]func(req transport.Request) (*transport.Response, error)
	requests []transport.Request
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: make(map[string]func(transport.Request) (*transport.Response, error))}
}

func (f *fakeTransport) respond(method, path string, status int, body string) {
	f.routes[method+" "+path] = func(transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

func (f *fakeTransport) RoundTrip(ctx context.Context, req transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn, ok := f.routes[req.Method+" "+req.Path]
	f.mu.Unlock()
	if !ok {
		return &transport.Response{StatusCode: http.StatusNotFound, Body: []byte(`{"errors":[]}`)}, nil
	}
	return fn(req)
}

func (f *fakeTransport) recorded() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Request(nil), f.requests...)
}

func requireBody(t *testing.T, req transport.Request, want string) {
	t.Helper()
	b, err := json.Marshal(req.Body)
	require.NoError(t, err)
	require.JSONEq(t, want, string(b))
}

const loginResponse = `{"auth":{"client_token":"my-token","renewable":true,"lease_duration":10}}`

func TestAppRoleValidation(t *testing.T) {
	tests := []struct {
		name string
		opts AppRoleOptions
		ok   bool
	}{
		{name: "direct role id", opts: AppRoleOptions{RoleID: "r"}, ok: true},
		{name: "pull mode", opts: AppRoleOptions{RoleName: "web", InitialToken: "t"}, ok: true},
		{name: "no identifiers", opts: AppRoleOptions{}, ok: false},
		{name: "role name without initial token", opts: AppRoleOptions{RoleName: "web"}, ok: false},
		{
			name: "conflicting secret sources",
			opts: AppRoleOptions{RoleID: "r", SecretID: "s", WrappedSecretIDToken: "w"},
			ok:   false,
		},
		{
			name: "pull secret id without pull credentials",
			opts: AppRoleOptions{RoleID: "r", PullSecretID: true},
			ok:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAppRole(tc.opts)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.True(t, trace.IsBadParameter(err), "got %v", err)
			}
		})
	}
}

func TestAppRoleLogin(t *testing.T) {
	rt := newFakeTransport()
	rt.respond("POST", "auth/approle/login", 200, loginResponse)

	m, err := NewAppRole(AppRoleOptions{RoleID: "hello", SecretID: "world"})
	require.NoError(t, err)
	require.Equal(t, "approle", m.Name())

	tok, err := m.Login(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, "my-token", tok.Value())

	reqs := rt.recorded()
	require.Len(t, reqs, 1)
	requireBody(t, reqs[0], `{"role_id":"hello","secret_id":"world"}`)
}

func TestAppRoleWrappedSecretID(t *testing.T) {
	envelope, err := json.Marshal(map[string]any{
		"data": map[string]string{
			"response": `{"data":{"secret_id":"my_secret_id"}}`,
		},
	})
	require.NoError(t, err)

	rt := newFakeTransport()
	rt.respond("GET", "cubbyhole/response", 200, string(envelope))
	rt.respond("POST", "auth/approle/login", 200, loginResponse)

	m, err := NewAppRole(AppRoleOptions{
		RoleID:               "my_role_id",
		WrappedSecretIDToken: "unwrapping_token",
	})
	require.NoError(t, err)

	tok, err := m.Login(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, "my-token", tok.Value())

	reqs := rt.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, "cubbyhole/response", reqs[0].Path)
	require.Equal(t, "unwrapping_token", reqs[0].Header.Get(transport.TokenHeader))
	requireBody(t, reqs[1], `{"role_id":"my_role_id","secret_id":"my_secret_id"}`)
}

func TestAppRolePullMode(t *testing.T) {
	rt := newFakeTransport()
	rt.respond("GET", "auth/approle/role/web/role-id", 200, `{"data":{"role_id":"pulled-role"}}`)
	rt.respond("POST", "auth/approle/role/web/secret-id", 200, `{"data":{"secret_id":"pulled-secret"}}`)
	rt.respond("POST", "auth/approle/login", 200, loginResponse)

	m, err := NewAppRole(AppRoleOptions{
		RoleName:     "web",
		InitialToken: "initial",
		PullSecretID: true,
	})
	require.NoError(t, err)

	tok, err := m.Login(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, "my-token", tok.Value())

	reqs := rt.recorded()
	require.Len(t, reqs, 3)
	for _, req := range reqs[:2] {
		require.Equal(t, "initial", req.Header.Get(transport.TokenHeader))
	}
	requireBody(t, reqs[2], `{"role_id":"pulled-role","secret_id":"pulled-secret"}`)
}

func TestWrappedToken(t *testing.T) {
	wrap := func(nested string) string {
		b, err := json.Marshal(map[string]any{"data": map[string]string{"response": nested}})
		require.NoError(t, err)
		return string(b)
	}

	tests := []struct {
		name     string
		nested   string
		want     string
		bare     bool
		errMatch string
	}{
		{
			name:   "auth block kept",
			nested: `{"auth":{"client_token":"real-token","renewable":true,"lease_duration":60}}`,
			want:   "real-token",
		},
		{
			name:   "single data value is the token",
			nested: `{"data":{"token":"real-token"}}`,
			want:   "real-token",
			bare:   true,
		},
		{
			name:     "no data yields no token",
			nested:   `{"data":{}}`,
			errMatch: "does not contain a token",
		},
		{
			name:     "multiple keys are ambiguous",
			nested:   `{"data":{"a":"x","b":"y"}}`,
			errMatch: "does not contain an unique token",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeTransport()
			rt.respond("GET", "cubbyhole/response", 200, wrap(tc.nested))

			m, err := NewWrappedToken(WrappedTokenOptions{Token: "wrapping"})
			require.NoError(t, err)

			tok, err := m.Login(context.Background(), rt)
			if tc.errMatch != "" {
				require.ErrorContains(t, err, tc.errMatch)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, tok.Value())

			_, isLogin := tok.(token.LoginToken)
			require.Equal(t, !tc.bare, isLogin)

			require.Equal(t, "wrapping", rt.recorded()[0].Header.Get(transport.TokenHeader))
		})
	}
}

func TestStaticToken(t *testing.T) {
	m, err := NewStaticToken(StaticTokenOptions{Token: "raw"})
	require.NoError(t, err)

	tok, err := m.Login(context.Background(), newFakeTransport())
	require.NoError(t, err)
	require.Equal(t, "raw", tok.Value())
	_, bare := tok.(token.SessionToken)
	require.True(t, bare, "static tokens stay bare so the manager self-looks them up")
	require.Empty(t, newFakeTransport().recorded())

	_, err = NewStaticToken(StaticTokenOptions{})
	require.True(t, trace.IsBadParameter(err))
}

func TestKubernetesLoginBody(t *testing.T) {
	rt := newFakeTransport()
	rt.respond("POST", "auth/kubernetes/login", 200, loginResponse)

	m, err := NewKubernetes(KubernetesOptions{Role: "web", JWT: StaticSupplier("sa-jwt")})
	require.NoError(t, err)

	_, err = m.Login(context.Background(), rt)
	require.NoError(t, err)
	requireBody(t, rt.recorded()[0], `{"role":"web","jwt":"sa-jwt"}`)
}

func TestAWSEC2NonceIsStable(t *testing.T) {
	rt := newFakeTransport()
	rt.respond("POST", "auth/aws/login", 200, loginResponse)

	m, err := NewAWSEC2(AWSEC2Options{Role: "web", PKCS7: StaticSupplier("signed-doc")})
	require.NoError(t, err)

	_, err = m.Login(context.Background(), rt)
	require.NoError(t, err)
	_, err = m.Login(context.Background(), rt)
	require.NoError(t, err)

	reqs := rt.recorded()
	first := reqs[0].Body.(map[string]string)
	second := reqs[1].Body.(map[string]string)
	require.NotEmpty(t, first["nonce"])
	require.Equal(t, first["nonce"], second["nonce"], "re-login presents the same nonce")
	require.Equal(t, "signed-doc", first["pkcs7"])
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Method, error)
	}{
		{"kubernetes without role", func() (*Method, error) {
			return NewKubernetes(KubernetesOptions{})
		}},
		{"jwt without supplier", func() (*Method, error) {
			return NewJWT(JWTOptions{Role: "web"})
		}},
		{"aws iam without signer", func() (*Method, error) {
			return NewAWSIAM(AWSIAMOptions{Role: "web"})
		}},
		{"azure with both vm and vmss", func() (*Method, error) {
			return NewAzure(AzureOptions{
				Role: "web", JWT: StaticSupplier("j"), VMName: "a", VMSSName: "b",
			})
		}},
		{"gcp without jwt", func() (*Method, error) {
			return NewGCP(GCPOptions{Role: "web"})
		}},
		{"wrapped token without token", func() (*Method, error) {
			return NewWrappedToken(WrappedTokenOptions{})
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			require.True(t, trace.IsBadParameter(err), "got %v", err)
		})
	}
}
