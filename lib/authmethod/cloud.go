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

// AzureOptions configures the Azure MSI flow: the managed identity's access
// token plus instance metadata are presented at login. Fetching both from
// the instance metadata service is a platform concern behind the suppliers.
type AzureOptions struct {
	// Path is the method mount path. Defaults to "azure".
	Path string
	// Role is the server-side role to authenticate as. Required.
	Role string
	// JWT supplies the managed identity access token. Required.
	JWT Supplier
	// SubscriptionID, ResourceGroupName and VMName identify the instance.
	SubscriptionID    string
	ResourceGroupName string
	VMName            string
	// VMSSName is set instead of VMName for scale-set instances.
	VMSSName string
}

// NewAzure builds the Azure MSI flow.
func NewAzure(opts AzureOptions) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "azure"
	}
	switch {
	case opts.Role == "":
		return nil, trace.BadParameter("azure flow requires a role")
	case opts.JWT == nil:
		return nil, trace.BadParameter("azure flow requires a JWT supplier")
	case opts.VMName != "" && opts.VMSSName != "":
		return nil, trace.BadParameter("azure flow accepts either a VM name or a scale-set name, not both")
	}
	step := authstep.LoginFunc(authstep.FromSupplier(opts.JWT), loginPath(opts.Path), func(tok string) (any, error) {
		body := map[string]string{
			"role":                opts.Role,
			"jwt":                 tok,
			"subscription_id":     opts.SubscriptionID,
			"resource_group_name": opts.ResourceGroupName,
		}
		if opts.VMSSName != "" {
			body["vmss_name"] = opts.VMSSName
		} else {
			body["vm_name"] = opts.VMName
		}
		return body, nil
	})
	return newMethod("azure", step), nil
}

// GCPOptions configures the GCP flow: a service-account-signed identity JWT
// is presented at login. Minting the JWT (metadata identity endpoint or IAM
// signJwt) is a platform concern behind the supplier.
type GCPOptions struct {
	// Path is the method mount path. Defaults to "gcp".
	Path string
	// Role is the server-side role to authenticate as. Required.
	Role string
	// JWT supplies the signed identity token. Required.
	JWT Supplier
}

// NewGCP builds the GCP flow.
func NewGCP(opts GCPOptions) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "gcp"
	}
	switch {
	case opts.Role == "":
		return nil, trace.BadParameter("gcp flow requires a role")
	case opts.JWT == nil:
		return nil, trace.BadParameter("gcp flow requires a JWT supplier")
	}
	step := authstep.LoginFunc(authstep.FromSupplier(opts.JWT), loginPath(opts.Path), func(tok string) (any, error) {
		return map[string]string{"role": opts.Role, "jwt": tok}, nil
	})
	return newMethod("gcp", step), nil
}
