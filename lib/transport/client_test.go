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

package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientRoundTrip(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"auth":{"client_token":"tok"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{Address: srv.URL, Namespace: "team-a"})
	require.NoError(t, err)

	req := Request{
		Method: "POST",
		Path:   "auth/approle/login",
		Body:   map[string]string{"role_id": "r1"},
	}.WithToken("tok")
	resp, err := c.RoundTrip(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/v1/auth/approle/login", got.URL.Path)
	require.Equal(t, "tok", got.Header.Get(TokenHeader))
	require.Equal(t, "team-a", got.Header.Get(NamespaceHeader))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &body))
	require.Equal(t, "r1", body["role_id"])

	secret, err := resp.Secret()
	require.NoError(t, err)
	require.Equal(t, "tok", secret.Auth.ClientToken)
}

func TestClientSurfacesErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["permission denied"]}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{Address: srv.URL})
	require.NoError(t, err)

	resp, err := c.RoundTrip(context.Background(), Request{Method: "GET", Path: "secret/data/app"})
	require.NoError(t, err, "non-2xx statuses complete the exchange")
	require.Error(t, resp.Err("GET", "secret/data/app"))
}

func TestClientConfigValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
	_, err = NewClient(ClientConfig{Address: "ftp://example.com"})
	require.Error(t, err)
}
