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

// Package authstep provides the declarative step machine behind every
// authentication flow. A flow is described once as an immutable graph of
// typed nodes and executed any number of times, on a blocking transport via
// [Execute] or on an asynchronous one via [ExecuteAsync]. No state carries
// between executions.
package authstep

import (
	"context"
	"time"

	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

// Step is a node of an authentication flow graph yielding a value of type T.
// Steps are immutable and restartable; sharing a Step between branches is
// allowed and evaluates it once per execution.
type Step[T any] interface {
	eval(ctx context.Context, env *execEnv) (T, error)
}

// Just returns a step that yields the given value.
func Just[T any](v T) Step[T] {
	return &justStep[T]{v: v}
}

type justStep[T any] struct {
	v T
}

func (s *justStep[T]) eval(ctx context.Context, env *execEnv) (T, error) {
	return s.v, nil
}

// FromSupplier returns a step that yields the result of an effect-free
// producer, such as reading a service-account token file. A failing supplier
// propagates its original failure unchanged.
func FromSupplier[T any](fn func() (T, error)) Step[T] {
	return &supplierStep[T]{fn: fn}
}

type supplierStep[T any] struct {
	fn func() (T, error)
}

func (s *supplierStep[T]) eval(ctx context.Context, env *execEnv) (T, error) {
	return evalMemo(env, s, func() (T, error) {
		return s.fn()
	})
}

// FromRequest returns a step that yields the decoded secret envelope of one
// request. Non-2xx statuses fail the step with an error annotated with
// method and path; 404 is distinguished as a not-found error.
func FromRequest(req transport.Request) Step[*transport.Secret] {
	return &requestStep{req: req}
}

type requestStep struct {
	req transport.Request
}

func (s *requestStep) eval(ctx context.Context, env *execEnv) (*transport.Secret, error) {
	return evalMemo(env, s, func() (*transport.Secret, error) {
		resp, err := env.do(ctx, s.req)
		if err != nil {
			return nil, trace.Wrap(err, "%s %s", s.req.Method, s.req.Path)
		}
		if err := resp.Err(s.req.Method, s.req.Path); err != nil {
			return nil, trace.Wrap(err)
		}
		secret, err := resp.Secret()
		if err != nil {
			return nil, trace.Wrap(err, "%s %s", s.req.Method, s.req.Path)
		}
		return secret, nil
	})
}

// Map transforms the parent step's output.
func Map[I, O any](parent Step[I], fn func(I) (O, error)) Step[O] {
	return &mapStep[I, O]{parent: parent, fn: fn}
}

type mapStep[I, O any] struct {
	parent Step[I]
	fn     func(I) (O, error)
}

func (s *mapStep[I, O]) eval(ctx context.Context, env *execEnv) (O, error) {
	return evalMemo(env, s, func() (O, error) {
		var zero O
		v, err := s.parent.eval(ctx, env)
		if err != nil {
			return zero, err
		}
		return s.fn(v)
	})
}

// OnNext taps the parent step's output without changing it.
func OnNext[T any](parent Step[T], fn func(T)) Step[T] {
	return &onNextStep[T]{parent: parent, fn: fn}
}

type onNextStep[T any] struct {
	parent Step[T]
	fn     func(T)
}

func (s *onNextStep[T]) eval(ctx context.Context, env *execEnv) (T, error) {
	v, err := s.parent.eval(ctx, env)
	if err != nil {
		return v, err
	}
	s.fn(v)
	return v, nil
}

// Pair is the result of zipping two branches.
type Pair[L, R any] struct {
	Left  L
	Right R
}

// Zip pairs two branches. Both are evaluated; under the asynchronous
// executor they run concurrently. Either branch's failure fails the whole
// evaluation.
func Zip[L, R any](left Step[L], right Step[R]) Step[Pair[L, R]] {
	return &zipStep[L, R]{left: left, right: right}
}

type zipStep[L, R any] struct {
	left  Step[L]
	right Step[R]
}

func (s *zipStep[L, R]) eval(ctx context.Context, env *execEnv) (Pair[L, R], error) {
	return evalMemo(env, s, func() (Pair[L, R], error) {
		var p Pair[L, R]
		if env.concurrent() {
			return s.evalConcurrent(ctx, env)
		}
		l, err := s.left.eval(ctx, env)
		if err != nil {
			return p, err
		}
		r, err := s.right.eval(ctx, env)
		if err != nil {
			return p, err
		}
		return Pair[L, R]{Left: l, Right: r}, nil
	})
}

// Login terminates the graph: the parent's output is POSTed as the JSON body
// to the given login path and the session token is extracted from the
// response's auth block.
func Login[T any](parent Step[T], path string) Step[token.Token] {
	return &loginStep[T]{
		parent: parent,
		path:   path,
		body:   func(v T) (any, error) { return v, nil },
	}
}

// LoginFunc is like [Login] but derives the request body from the parent's
// output through fn.
func LoginFunc[T any](parent Step[T], path string, fn func(T) (any, error)) Step[token.Token] {
	return &loginStep[T]{parent: parent, path: path, body: fn}
}

type loginStep[T any] struct {
	parent Step[T]
	path   string
	body   func(T) (any, error)
}

func (s *loginStep[T]) eval(ctx context.Context, env *execEnv) (token.Token, error) {
	return evalMemo(env, s, func() (token.Token, error) {
		v, err := s.parent.eval(ctx, env)
		if err != nil {
			return nil, err
		}
		body, err := s.body(v)
		if err != nil {
			return nil, &LoginError{Path: s.path, Err: err}
		}
		resp, err := env.do(ctx, transport.Request{
			Method: "POST",
			Path:   s.path,
			Body:   body,
		})
		if err != nil {
			return nil, &LoginError{Method: "POST", Path: s.path, Err: err}
		}
		if err := resp.Err("POST", s.path); err != nil {
			return nil, &LoginError{Method: "POST", Path: s.path, Err: err}
		}
		secret, err := resp.Secret()
		if err != nil {
			return nil, &LoginError{Method: "POST", Path: s.path, Err: err}
		}
		tok, err := TokenFromAuth(secret.Auth)
		if err != nil {
			return nil, &LoginError{Method: "POST", Path: s.path, Err: err}
		}
		return tok, nil
	})
}

// TokenFromAuth builds a login token from a response auth block. Absent
// fields default to a zero lease, non-renewable, unknown type, no accessor.
func TokenFromAuth(auth *transport.AuthInfo) (token.LoginToken, error) {
	if auth == nil {
		return token.LoginToken{}, trace.BadParameter("login response contains no auth block")
	}
	if auth.ClientToken == "" {
		return token.LoginToken{}, trace.BadParameter("login response auth block contains no client token")
	}
	tok, err := token.NewBuilder(auth.ClientToken).
		LeaseDuration(time.Duration(auth.LeaseDuration) * time.Second).
		Renewable(auth.Renewable).
		Accessor(auth.Accessor).
		Type(token.Type(auth.TokenType)).
		Build()
	return tok, trace.Wrap(err)
}
