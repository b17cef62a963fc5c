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

// Package transport defines the single capability the library requires from
// an HTTP client: execute a prepared request against the secrets service and
// surface status, headers, and body. Concrete transports (connection
// pooling, TLS, retries) are external collaborators; the library never
// synthesizes retries at this layer.
package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gravitational/trace"
)

// TokenHeader is the header carrying the session token on authenticated
// requests.
const TokenHeader = "X-Vault-Token"

// Request is a prepared request against the secrets service. Path is
// relative to the transport's configured base endpoint, e.g.
// "auth/approle/login".
type Request struct {
	// Method is the HTTP method.
	Method string
	// Path is the endpoint path relative to the base endpoint.
	Path string
	// Header carries additional request headers, typically the auth header.
	Header http.Header
	// Body, when non-nil, is serialized as the JSON request body.
	Body any
}

// WithToken returns a copy of the request with the auth header set.
func (r Request) WithToken(token string) Request {
	h := make(http.Header, len(r.Header)+1)
	for k, v := range r.Header {
		h[k] = v
	}
	h.Set(TokenHeader, token)
	r.Header = h
	return r
}

// Response is the outcome of a completed exchange. A Response exists for any
// status code; use Err to classify non-2xx statuses.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Header carries the response headers.
	Header http.Header
	// Body is the raw response body.
	Body []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return trace.Wrap(err, "decoding response body")
	}
	return nil
}

// Secret decodes the body as the standard secret envelope.
func (r *Response) Secret() (*Secret, error) {
	var s Secret
	if err := r.Decode(&s); err != nil {
		return nil, trace.Wrap(err)
	}
	return &s, nil
}

// Err classifies the response status. It returns nil for 2xx, a NotFound
// error for 404, and a *ServerError for any other status. method and path
// annotate the error.
func (r *Response) Err(method, path string) error {
	switch {
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return nil
	case r.StatusCode == http.StatusNotFound:
		return trace.NotFound("%s %s: not found", method, path)
	default:
		return &ServerError{
			Method:     method,
			Path:       path,
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	}
}

// RoundTripper executes a prepared request and blocks until the exchange
// completes or ctx is done. A non-nil Response is returned for any completed
// exchange regardless of status code; errors indicate the transport could
// not complete the call at all.
type RoundTripper interface {
	RoundTrip(ctx context.Context, req Request) (*Response, error)
}

// RoundTripperFunc adapts a function to the RoundTripper interface.
type RoundTripperFunc func(ctx context.Context, req Request) (*Response, error)

// RoundTrip implements RoundTripper.
func (f RoundTripperFunc) RoundTrip(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Result is the outcome delivered by an asynchronous exchange.
type Result struct {
	Response *Response
	Err      error
}

// AsyncRoundTripper executes a prepared request without blocking the caller.
// The returned channel delivers exactly one Result. Cancelling ctx cancels
// the in-flight exchange.
type AsyncRoundTripper interface {
	RoundTripAsync(ctx context.Context, req Request) <-chan Result
}

// Async adapts a blocking transport to the asynchronous surface by running
// each exchange on its own goroutine.
func Async(rt RoundTripper) AsyncRoundTripper {
	return asyncAdapter{rt: rt}
}

type asyncAdapter struct {
	rt RoundTripper
}

func (a asyncAdapter) RoundTripAsync(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		resp, err := a.rt.RoundTrip(ctx, req)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}
