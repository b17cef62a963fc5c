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

	"github.com/gravitational/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gravitational/vaultkeeper/lib/transport"
)

// Future carries the eventual result of an asynchronous execution.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, trace.Wrap(ctx.Err())
	}
}

// ExecuteAsync runs the graph on an asynchronous transport without blocking
// the caller. Zipped branches run concurrently. Cancelling ctx cancels
// in-flight requests and stops further nodes from being evaluated; the
// future then completes with the cancellation error.
func ExecuteAsync[T any](ctx context.Context, art transport.AsyncRoundTripper, step Step[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	if art == nil {
		f.err = trace.BadParameter("transport is required")
		close(f.done)
		return f
	}
	env := newExecEnv(nil, art)
	go func() {
		defer close(f.done)
		f.val, f.err = step.eval(ctx, env)
	}()
	return f
}

// evalConcurrent runs both zip branches in parallel. The first failure
// cancels the sibling branch.
func (s *zipStep[L, R]) evalConcurrent(ctx context.Context, env *execEnv) (Pair[L, R], error) {
	var p Pair[L, R]
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := s.left.eval(gctx, env)
		if err != nil {
			return err
		}
		p.Left = l
		return nil
	})
	g.Go(func() error {
		r, err := s.right.eval(gctx, env)
		if err != nil {
			return err
		}
		p.Right = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pair[L, R]{}, err
	}
	return p, nil
}
