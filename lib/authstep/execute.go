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

package authstep

import (
	"context"
	"fmt"
	"sync"

	"github.com/gravitational/trace"

	"github.com/gravitational/vaultkeeper/lib/transport"
)

// Execute runs the graph to completion on a blocking transport and returns
// the value its terminal yields. Each execution starts afresh: node results
// are memoized within a single evaluation only.
func Execute[T any](ctx context.Context, rt transport.RoundTripper, step Step[T]) (T, error) {
	if rt == nil {
		var zero T
		return zero, trace.BadParameter("transport is required")
	}
	env := newExecEnv(rt, nil)
	return step.eval(ctx, env)
}

// LoginError indicates a failure while driving a login flow. It annotates
// the underlying cause with the request that produced it.
type LoginError struct {
	// Method is the HTTP method of the failing request, when one was made.
	Method string
	// Path is the login path of the flow.
	Path string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("login failed: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("login failed: %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoginError) Unwrap() error { return e.Err }

// execEnv is the per-execution state: the transport in use and the node
// result memo. It is shared by every node of one evaluation and discarded
// afterwards.
type execEnv struct {
	rt  transport.RoundTripper
	art transport.AsyncRoundTripper

	mu   sync.Mutex
	memo map[any]*memoEntry
}

type memoEntry struct {
	once sync.Once
	val  any
	err  error
}

func newExecEnv(rt transport.RoundTripper, art transport.AsyncRoundTripper) *execEnv {
	return &execEnv{rt: rt, art: art, memo: make(map[any]*memoEntry)}
}

// concurrent reports whether zipped branches may run in parallel.
func (env *execEnv) concurrent() bool { return env.art != nil }

// do executes one request on whichever transport flavor the execution runs.
func (env *execEnv) do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if env.art != nil {
		select {
		case res := <-env.art.RoundTripAsync(ctx, req):
			return res.Response, trace.Wrap(res.Err)
		case <-ctx.Done():
			return nil, trace.Wrap(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, trace.Wrap(err)
	}
	return env.rt.RoundTrip(ctx, req)
}

func (env *execEnv) entry(node any) *memoEntry {
	env.mu.Lock()
	defer env.mu.Unlock()
	e, ok := env.memo[node]
	if !ok {
		e = &memoEntry{}
		env.memo[node] = e
	}
	return e
}

// evalMemo evaluates f at most once per execution for the given node, also
// when branches sharing the node run concurrently.
func evalMemo[T any](env *execEnv, node any, f func() (T, error)) (T, error) {
	e := env.entry(node)
	e.once.Do(func() {
		e.val, e.err = f()
	})
	if e.err != nil {
		var zero T
		return zero, e.err
	}
	// The comma-ok form tolerates nodes that legitimately yield a nil
	// interface value.
	v, _ := e.val.(T)
	return v, nil
}
