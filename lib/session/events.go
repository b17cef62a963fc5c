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

package session

import "fmt"

// EventKind tags an authentication lifecycle event.
type EventKind string

const (
	EventBeforeLogin                EventKind = "beforeLogin"
	EventAfterLogin                 EventKind = "afterLogin"
	EventBeforeLoginTokenRenewed    EventKind = "beforeLoginTokenRenewed"
	EventAfterLoginTokenRenewed     EventKind = "afterLoginTokenRenewed"
	EventLoginTokenExpired          EventKind = "loginTokenExpired"
	EventBeforeLoginTokenRevocation EventKind = "beforeLoginTokenRevocation"
	EventAfterLoginTokenRevocation  EventKind = "afterLoginTokenRevocation"
)

// Event is an authentication lifecycle event. The token value is never
// carried; the accessor identifies the token where the server issued one.
type Event struct {
	Kind     EventKind
	Accessor string
}

// ErrorKind discriminates authentication error events.
type ErrorKind string

const (
	ErrorLoginFailed                ErrorKind = "loginFailed"
	ErrorTokenRenewalFailed         ErrorKind = "tokenRenewalFailed"
	ErrorLoginTokenRevocationFailed ErrorKind = "loginTokenRevocationFailed"
	ErrorSelfLookupFailed           ErrorKind = "selfLookupFailed"
)

// AuthError is the typed error event published on the bus's error channel.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error { return e.Err }

// TokenRenewalError indicates that the renewal endpoint returned a non-2xx
// status or a response without an auth block.
type TokenRenewalError struct {
	// StatusCode is the HTTP status of the renewal response, zero when the
	// transport failed outright.
	StatusCode int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TokenRenewalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token renewal failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token renewal failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *TokenRenewalError) Unwrap() error { return e.Err }

// StateError indicates a call in a wrong lifecycle state.
type StateError struct {
	// Op is the attempted operation.
	Op string
	// State is the manager's current state.
	State string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: session manager is %s", e.Op, e.State)
}
