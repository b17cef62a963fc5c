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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravitational/vaultkeeper/lib/transport"
)

func TestExecuteAsyncResolvesFuture(t *testing.T) {
	rt := newFakeTransport()
	rt.respond("POST", "auth/approle/login", 200, approleLoginResponse)

	fut := ExecuteAsync(context.Background(), transport.Async(rt), approleGraph(Just("r"), Just("s")))
	tok, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "my-token", tok.Value())
}

func TestZipBranchesRunConcurrently(t *testing.T) {
	// Both branch requests must be in flight at the same time before either
	// response is released.
	var mu sync.Mutex
	inFlight := 0
	bothStarted := make(chan struct{})

	rt := newFakeTransport()
	barrier := func(body string) func(transport.Request) (*transport.Response, error) {
		return func(transport.Request) (*transport.Response, error) {
			mu.Lock()
			inFlight++
			if inFlight == 2 {
				close(bothStarted)
			}
			mu.Unlock()
			select {
			case <-bothStarted:
			case <-time.After(5 * time.Second):
			}
			return &transport.Response{StatusCode: 200, Body: []byte(body)}, nil
		}
	}
	rt.handle("GET", "left", barrier(`{"data":{"v":"l"}}`))
	rt.handle("GET", "right", barrier(`{"data":{"v":"r"}}`))

	graph := Zip(
		FromRequest(transport.Request{Method: "GET", Path: "left"}),
		FromRequest(transport.Request{Method: "GET", Path: "right"}),
	)
	fut := ExecuteAsync(context.Background(), transport.Async(rt), graph)

	pair, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pair.Left)
	require.NotNil(t, pair.Right)

	select {
	case <-bothStarted:
	default:
		t.Fatal("branches did not overlap")
	}
}

func TestAsyncCancellation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var loginCalled sync.Once
	loginCount := 0

	rt := newFakeTransport()
	rt.handle("GET", "slow", func(transport.Request) (*transport.Response, error) {
		close(started)
		<-release
		return &transport.Response{StatusCode: 200, Body: []byte(`{"data":{}}`)}, nil
	})
	rt.handle("POST", "auth/approle/login", func(transport.Request) (*transport.Response, error) {
		loginCalled.Do(func() { loginCount++ })
		return &transport.Response{StatusCode: 200, Body: []byte(approleLoginResponse)}, nil
	})

	slow := Map(FromRequest(transport.Request{Method: "GET", Path: "slow"}), func(*transport.Secret) (string, error) {
		return "never", nil
	})
	graph := Login(slow, "auth/approle/login")

	ctx, cancel := context.WithCancel(context.Background())
	fut := ExecuteAsync(ctx, transport.Async(rt), graph)

	<-started
	cancel()

	_, err := fut.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, loginCount, "no further nodes run after cancellation")

	close(release)
}

func TestFutureWaitHonorsCallerContext(t *testing.T) {
	rt := newFakeTransport()
	release := make(chan struct{})
	rt.handle("POST", "auth/approle/login", func(transport.Request) (*transport.Response, error) {
		<-release
		return &transport.Response{StatusCode: 200, Body: []byte(approleLoginResponse)}, nil
	})

	fut := ExecuteAsync(context.Background(), transport.Async(rt), approleGraph(Just("r"), Just("s")))

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := fut.Wait(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	tok, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "my-token", tok.Value())
}
