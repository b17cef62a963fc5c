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

package certmgr

import (
	"context"
	"strings"

	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

// TokenSource yields the session token used to authenticate PKI calls.
// [session.Manager] satisfies it.
type TokenSource interface {
	SessionToken(ctx context.Context) (token.Token, error)
}

// PKIConfig configures a PKIAuthority.
type PKIConfig struct {
	// Transport executes requests against the secrets service. Required.
	Transport transport.RoundTripper
	// Tokens authenticates the PKI calls. Required.
	Tokens TokenSource
	// Mount is the path the pki backend is mounted at. Defaults to "pki".
	Mount string
}

// CheckAndSetDefaults checks the configuration and sets default values.
func (cfg *PKIConfig) CheckAndSetDefaults() error {
	switch {
	case cfg.Transport == nil:
		return trace.BadParameter("Transport is required")
	case cfg.Tokens == nil:
		return trace.BadParameter("Tokens is required")
	}
	if cfg.Mount == "" {
		cfg.Mount = "pki"
	}
	return nil
}

// PKIAuthority implements [CertificateAuthority] against the server's pki
// backend: bundles through pki/issue/<role>, trust anchors through
// pki/cert/<issuer>.
type PKIAuthority struct {
	cfg PKIConfig
}

// NewPKIAuthority creates a PKI-backed certificate authority.
func NewPKIAuthority(cfg PKIConfig) (*PKIAuthority, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &PKIAuthority{cfg: cfg}, nil
}

// IssueCertificate issues a leaf certificate and key under the given role.
func (a *PKIAuthority) IssueCertificate(ctx context.Context, name, role string, req CertificateRequest) (*Certificate, error) {
	body := map[string]any{"common_name": req.CommonName}
	if len(req.AltNames) > 0 {
		body["alt_names"] = strings.Join(req.AltNames, ",")
	}
	if len(req.IPSANs) > 0 {
		body["ip_sans"] = strings.Join(req.IPSANs, ",")
	}
	if req.TTL > 0 {
		body["ttl"] = req.TTL.String()
	}

	secret, err := a.call(ctx, transport.Request{
		Method: "POST",
		Path:   a.cfg.Mount + "/issue/" + role,
		Body:   body,
	})
	if err != nil {
		return nil, trace.Wrap(err, "issuing certificate %q", name)
	}

	certPEM, err := secret.DataString("certificate")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	serial, _ := secret.DataString("serial_number")
	cert, err := NewCertificate([]byte(certPEM), serial)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if keyPEM, err := secret.DataString("private_key"); err == nil {
		cert.PrivateKeyPEM = []byte(keyPEM)
	}
	cert.CAChainPEM = caChain(secret.Data)
	return cert, nil
}

// IssuerCertificate fetches the public certificate of the given issuer.
func (a *PKIAuthority) IssuerCertificate(ctx context.Context, name, issuer string) (*Certificate, error) {
	secret, err := a.call(ctx, transport.Request{
		Method: "GET",
		Path:   a.cfg.Mount + "/cert/" + issuer,
	})
	if err != nil {
		return nil, trace.Wrap(err, "fetching issuer certificate %q", name)
	}
	certPEM, err := secret.DataString("certificate")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	cert, err := NewCertificate([]byte(certPEM), "")
	return cert, trace.Wrap(err)
}

func (a *PKIAuthority) call(ctx context.Context, req transport.Request) (*transport.Secret, error) {
	tok, err := a.cfg.Tokens.SessionToken(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	resp, err := a.cfg.Transport.RoundTrip(ctx, req.WithToken(tok.Value()))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := resp.Err(req.Method, req.Path); err != nil {
		return nil, trace.Wrap(err)
	}
	secret, err := resp.Secret()
	return secret, trace.Wrap(err)
}

// caChain extracts the issuing chain from a pki/issue data block. The
// server reports either a ca_chain list or a single issuing_ca.
func caChain(data map[string]any) [][]byte {
	if chain, ok := data["ca_chain"].([]any); ok {
		out := make([][]byte, 0, len(chain))
		for _, link := range chain {
			if s, ok := link.(string); ok {
				out = append(out, []byte(s))
			}
		}
		return out
	}
	if ca, ok := data["issuing_ca"].(string); ok {
		return [][]byte{[]byte(ca)}
	}
	return nil
}
