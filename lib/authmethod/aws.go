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
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/authstep"
)

// AWSEC2Options configures the EC2 metadata flow: the instance presents the
// PKCS#7-signed identity document fetched from the instance metadata
// service. Producing the document is a platform concern behind the
// supplier.
type AWSEC2Options struct {
	// Path is the method mount path. Defaults to "aws".
	Path string
	// Role is the server-side role to authenticate as. Required.
	Role string
	// PKCS7 supplies the signed instance identity document. Required.
	PKCS7 Supplier
	// Nonce is the reauthentication nonce. Defaults to a random UUID,
	// fixed for the lifetime of the method so re-logins present the same
	// nonce.
	Nonce string
}

// NewAWSEC2 builds the EC2 metadata flow.
func NewAWSEC2(opts AWSEC2Options) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "aws"
	}
	switch {
	case opts.Role == "":
		return nil, trace.BadParameter("aws ec2 flow requires a role")
	case opts.PKCS7 == nil:
		return nil, trace.BadParameter("aws ec2 flow requires a PKCS#7 supplier")
	}
	if opts.Nonce == "" {
		opts.Nonce = uuid.NewString()
	}
	step := authstep.LoginFunc(authstep.FromSupplier(opts.PKCS7), loginPath(opts.Path), func(pkcs7 string) (any, error) {
		return map[string]string{
			"pkcs7": pkcs7,
			"nonce": opts.Nonce,
			"role":  opts.Role,
		}, nil
	})
	return newMethod("aws-ec2", step), nil
}

const (
	defaultSTSEndpoint    = "https://sts.amazonaws.com/"
	defaultSTSRequestBody = "Action=GetCallerIdentity&Version=2011-06-15"
)

// AWSIAMOptions configures the IAM flow: a pre-signed sts:GetCallerIdentity
// request is presented at login. Signing the request is a platform concern
// behind the supplier, which returns the signed headers as a JSON object
// string.
type AWSIAMOptions struct {
	// Path is the method mount path. Defaults to "aws".
	Path string
	// Role is the server-side role to authenticate as. Required.
	Role string
	// SignedHeaders supplies the sigv4-signed request headers. Required.
	SignedHeaders Supplier
	// STSEndpoint overrides the STS endpoint named in the login body.
	STSEndpoint string
	// STSRequestBody overrides the STS request body named in the login
	// body.
	STSRequestBody string
}

// NewAWSIAM builds the IAM flow.
func NewAWSIAM(opts AWSIAMOptions) (*Method, error) {
	if opts.Path == "" {
		opts.Path = "aws"
	}
	switch {
	case opts.Role == "":
		return nil, trace.BadParameter("aws iam flow requires a role")
	case opts.SignedHeaders == nil:
		return nil, trace.BadParameter("aws iam flow requires a signed-headers supplier")
	}
	if opts.STSEndpoint == "" {
		opts.STSEndpoint = defaultSTSEndpoint
	}
	if opts.STSRequestBody == "" {
		opts.STSRequestBody = defaultSTSRequestBody
	}
	b64 := base64.StdEncoding.EncodeToString
	step := authstep.LoginFunc(authstep.FromSupplier(opts.SignedHeaders), loginPath(opts.Path), func(headers string) (any, error) {
		return map[string]string{
			"role":                    opts.Role,
			"iam_http_request_method": "POST",
			"iam_request_url":         b64([]byte(opts.STSEndpoint)),
			"iam_request_body":        b64([]byte(opts.STSRequestBody)),
			"iam_request_headers":     b64([]byte(headers)),
		}, nil
	})
	return newMethod("aws-iam", step), nil
}
