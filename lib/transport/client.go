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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// NamespaceHeader selects the server namespace a request operates in.
const NamespaceHeader = "X-Vault-Namespace"

// defaultTimeout bounds an exchange when the caller's context carries no
// deadline.
const defaultTimeout = 60 * time.Second

// ClientConfig configures an HTTP Client.
type ClientConfig struct {
	// Address is the server base address, e.g. "https://vault.example.com:8200".
	// Required.
	Address string
	// Namespace, when set, is sent on every request.
	Namespace string
	// TLS configures the connection. Nil uses the defaults.
	TLS *tls.Config
	// HTTPClient overrides the underlying client. Nil builds one from TLS
	// and Timeout.
	HTTPClient *http.Client
	// Timeout bounds each exchange when the request context has no
	// deadline. Defaults to sixty seconds.
	Timeout time.Duration
}

// CheckAndSetDefaults checks the configuration and sets default values.
func (cfg *ClientConfig) CheckAndSetDefaults() error {
	if cfg.Address == "" {
		return trace.BadParameter("Address is required")
	}
	u, err := url.Parse(cfg.Address)
	if err != nil {
		return trace.Wrap(err, "parsing address")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return trace.BadParameter("address scheme must be http or https, got %q", u.Scheme)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = cfg.TLS
		cfg.HTTPClient = &http.Client{Transport: transport}
	}
	return nil
}

// Client is the HTTP transport against a real server. Paths are resolved
// under the server's versioned API prefix.
type Client struct {
	cfg  ClientConfig
	base string
}

// NewClient creates an HTTP transport for the given server.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Client{cfg: cfg, base: strings.TrimRight(cfg.Address, "/") + "/v1/"}, nil
}

// RoundTrip implements [RoundTripper].
func (c *Client) RoundTrip(ctx context.Context, req Request) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, trace.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.base+strings.TrimLeft(req.Path, "/"), body)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Namespace != "" {
		httpReq.Header.Set(NamespaceHeader, c.cfg.Namespace)
	}

	httpResp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer httpResp.Body.Close()
	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, trace.Wrap(err, "reading response body")
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}
