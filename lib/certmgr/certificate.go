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

// Package certmgr manages short-lived X.509 certificates issued by the
// secrets service: a container obtains registered certificates on start,
// schedules rotation ahead of expiry, and publishes lifecycle events for
// each registration.
package certmgr

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// CertificateRequest carries the issuance parameters for a bundle.
type CertificateRequest struct {
	// CommonName is the subject common name. Required for bundles.
	CommonName string
	// AltNames are additional DNS subject alternative names.
	AltNames []string
	// IPSANs are IP subject alternative names.
	IPSANs []string
	// TTL requests a validity period. Zero defers to the server's role
	// default.
	TTL time.Duration
}

// Certificate is an issued certificate together with its parsed leaf. The
// private key and chain are populated for bundles only.
type Certificate struct {
	// CertificatePEM is the PEM-encoded leaf certificate.
	CertificatePEM []byte
	// PrivateKeyPEM is the PEM-encoded private key, empty for trust
	// anchors.
	PrivateKeyPEM []byte
	// CAChainPEM holds the PEM-encoded issuing chain, outermost last.
	CAChainPEM [][]byte

	leaf   *x509.Certificate
	serial string
}

// NewCertificate parses the PEM leaf and wraps it. serverSerial is the
// serial string reported by the server; when empty, the serial is derived
// from the parsed certificate.
func NewCertificate(certPEM []byte, serverSerial string) (*Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, trace.BadParameter("response contains no PEM certificate")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, trace.Wrap(err, "parsing certificate")
	}
	return &Certificate{CertificatePEM: certPEM, leaf: leaf, serial: serverSerial}, nil
}

// X509 returns the parsed leaf certificate.
func (c *Certificate) X509() *x509.Certificate { return c.leaf }

// NotAfter returns the leaf's expiry instant.
func (c *Certificate) NotAfter() time.Time { return c.leaf.NotAfter }

// SerialNumber returns the server-reported serial verbatim when present,
// otherwise the serial derived from the leaf.
func (c *Certificate) SerialNumber() string {
	if c.serial != "" {
		return c.serial
	}
	return FormatSerial(c.leaf.SerialNumber.Bytes())
}

// FormatSerial renders serial bytes as lowercase colon-separated hex.
// Leading zero bytes are stripped; an all-zero serial renders as "00".
func FormatSerial(b []byte) string {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	b = b[i:]
	if len(b) == 0 {
		return "00"
	}
	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = hex.EncodeToString([]byte{octet})
	}
	return strings.Join(parts, ":")
}
