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

import "fmt"

// EventKind tags a certificate lifecycle event.
type EventKind string

const (
	// EventCertificateObtained marks the first successful fetch of a trust
	// anchor in a container run.
	EventCertificateObtained EventKind = "certificateObtained"
	// EventCertificateBundleIssued marks the first successful issuance of a
	// bundle in a container run.
	EventCertificateBundleIssued EventKind = "certificateBundleIssued"
	// EventCertificateRotated marks a subsequent successful fetch of a trust
	// anchor.
	EventCertificateRotated EventKind = "certificateRotated"
	// EventCertificateBundleRotated marks a subsequent successful issuance
	// of a bundle.
	EventCertificateBundleRotated EventKind = "certificateBundleRotated"
	// EventCertificateExpired marks a holder rotated out after its expiry
	// had already passed.
	EventCertificateExpired EventKind = "certificateExpired"
	// EventCertificateError wraps an issuance or rotation failure.
	EventCertificateError EventKind = "certificateError"
)

// Event is a certificate lifecycle event. Source identifies the
// registration it concerns; listeners registered against a single
// registration see only events with a matching source.
type Event struct {
	Kind   EventKind
	Source string
	// Certificate is the affected certificate: the newly installed one for
	// obtained/issued/rotated events, the outgoing one for expired events.
	// Nil on error events.
	Certificate *Certificate
	// Err is the failure cause, set on error events only.
	Err error
}

// CertificateError is the typed error published on the bus's error channel
// when issuance or rotation fails.
type CertificateError struct {
	// Name identifies the registration.
	Name string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CertificateError) Error() string {
	return fmt.Sprintf("certificate %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CertificateError) Unwrap() error { return e.Err }
