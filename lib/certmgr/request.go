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

import "context"

// RequestedCertificate names a certificate the container should keep
// current. Two variants exist: a bundle, issued under a PKI role with a key
// pair, and a trust anchor, fetched from an issuer. Identity is by name.
type RequestedCertificate struct {
	name    string
	role    string
	issuer  string
	bundle  bool
	request CertificateRequest
}

// Bundle requests issuance of a leaf certificate and key under the given
// role.
func Bundle(name, role string, req CertificateRequest) RequestedCertificate {
	return RequestedCertificate{name: name, role: role, bundle: true, request: req}
}

// TrustAnchor requests the public certificate of the given issuer.
func TrustAnchor(name, issuer string) RequestedCertificate {
	return RequestedCertificate{name: name, issuer: issuer}
}

// Name returns the registration's identity.
func (r RequestedCertificate) Name() string { return r.name }

// IsBundle reports whether the registration is an issued bundle rather than
// a fetched trust anchor.
func (r RequestedCertificate) IsBundle() bool { return r.bundle }

// obtain fetches the certificate through the authority, dispatching on the
// variant.
func (r RequestedCertificate) obtain(ctx context.Context, ca CertificateAuthority) (*Certificate, error) {
	if r.bundle {
		return ca.IssueCertificate(ctx, r.name, r.role, r.request)
	}
	return ca.IssuerCertificate(ctx, r.name, r.issuer)
}

// CertificateAuthority abstracts the server's PKI surface. Implementations
// map these calls onto concrete endpoints; [PKIAuthority] targets the
// server's pki backend.
type CertificateAuthority interface {
	// IssueCertificate issues a leaf certificate and key under role.
	IssueCertificate(ctx context.Context, name, role string, req CertificateRequest) (*Certificate, error)
	// IssuerCertificate fetches the public certificate of an issuer.
	IssuerCertificate(ctx context.Context, name, issuer string) (*Certificate, error)
}
