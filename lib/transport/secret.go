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
	"fmt"
	"time"

	"github.com/gravitational/trace"
)

// Secret is the standard response envelope of the secrets service.
type Secret struct {
	RequestID     string         `json:"request_id"`
	LeaseID       string         `json:"lease_id"`
	Renewable     bool           `json:"renewable"`
	LeaseDuration int            `json:"lease_duration"`
	Data          map[string]any `json:"data"`
	Warnings      []string       `json:"warnings"`
	Auth          *AuthInfo      `json:"auth"`
	WrapInfo      *WrapInfo      `json:"wrap_info"`
}

// AuthInfo is the auth block of a login or renewal response.
type AuthInfo struct {
	ClientToken   string            `json:"client_token"`
	Accessor      string            `json:"accessor"`
	Policies      []string          `json:"policies"`
	TokenPolicies []string          `json:"token_policies"`
	Metadata      map[string]string `json:"metadata"`
	LeaseDuration int               `json:"lease_duration"`
	Renewable     bool              `json:"renewable"`
	TokenType     string            `json:"token_type"`
}

// WrapInfo describes a response-wrapping token.
type WrapInfo struct {
	Token           string    `json:"token"`
	Accessor        string    `json:"accessor"`
	TTL             int       `json:"ttl"`
	CreationTime    time.Time `json:"creation_time"`
	CreationPath    string    `json:"creation_path"`
	WrappedAccessor string    `json:"wrapped_accessor"`
}

// DataString returns the string held under key in the data block. It fails
// when the key is absent or not a string.
func (s *Secret) DataString(key string) (string, error) {
	if s.Data == nil {
		return "", trace.NotFound("response has no data block")
	}
	v, ok := s.Data[key]
	if !ok {
		return "", trace.NotFound("response data has no %q field", key)
	}
	str, ok := v.(string)
	if !ok {
		return "", trace.BadParameter("response data field %q is not a string", key)
	}
	return str, nil
}

// ServerError indicates a completed exchange with a non-2xx status.
type ServerError struct {
	// Method and Path identify the request.
	Method string
	Path   string
	// StatusCode is the HTTP status the server returned.
	StatusCode int
	// Body is the raw response body, typically a JSON error list.
	Body []byte
}

// Error implements the error interface. The body is included as servers
// return their diagnostics there.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, string(e.Body))
}
