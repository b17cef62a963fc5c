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
	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/authstep"
)

// TLSCertOptions configures the client-certificate flow. The certificate
// itself lives in the transport's TLS configuration; the login request only
// optionally names the certificate role to authenticate against.
type TLSCertOptions struct {
	// Path is the method mount path. Defaults to "cert".
	Path string
	// Name restricts the login to a named certificate role. Optional.
	Name string
}

// NewTLSCert builds the client-certificate flow.
func NewTLSCert(opts TLSCertOptions) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "cert"
	}
	body := map[string]string{}
	if opts.Name != "" {
		body["name"] = opts.Name
	}
	return newMethod("cert", authstep.Login(authstep.Just(body), loginPath(opts.Path))), nil
}

// KubernetesOptions configures the service-account JWT flow.
type KubernetesOptions struct {
	// Path is the method mount path. Defaults to "kubernetes".
	Path string
	// Role is the server-side role to authenticate as. Required.
	Role string
	// JWT supplies the service-account token. Defaults to reading the
	// in-cluster projected token file.
	JWT Supplier
}

// defaultServiceAccountTokenPath is where kubelets project the
// service-account token inside a pod.
const defaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// NewKubernetes builds the Kubernetes service-account flow.
func NewKubernetes(opts KubernetesOptions) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "kubernetes"
	}
	if opts.Role == "" {
		return nil, trace.BadParameter("kubernetes flow requires a role")
	}
	if opts.JWT == nil {
		opts.JWT = FileSupplier(defaultServiceAccountTokenPath)
	}
	jwt := authstep.FromSupplier(opts.JWT)
	step := authstep.LoginFunc(jwt, loginPath(opts.Path), func(jwt string) (any, error) {
		return map[string]string{"role": opts.Role, "jwt": jwt}, nil
	})
	return newMethod("kubernetes", step), nil
}
