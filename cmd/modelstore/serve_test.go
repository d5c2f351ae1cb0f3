// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstore/modelstore/internal/config"
	"github.com/modelstore/modelstore/internal/observability"
)

func TestServe(t *testing.T) {
	h := newHarness(t)

	servers := make(chan ObservabilityServer, 1)
	h.deps.ObservabilityServerFactory = func(addr, version string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
		s := observability.NewServer(addr, version, ready, logger)
		servers <- s
		return s
	}
	var gotRegistry prometheus.Registerer
	open := h.deps.OpenBackend
	closed := make(chan struct{})
	h.deps.OpenBackend = func(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Backend, error) {
		gotRegistry = reg
		b, err := open(ctx, cfg, logger, reg)
		if err != nil {
			return nil, err
		}
		b.Close = func() { close(closed) }
		return b, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := h.runContext(ctx, "", "serve", "--metrics-addr", "127.0.0.1:0")
		done <- err
	}()

	var server ObservabilityServer
	select {
	case server = <-servers:
	case <-time.After(5 * time.Second):
		t.Fatal("observability server was not created")
	}
	require.Eventually(t, func() bool { return server.Addr() != "" }, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + server.Addr() + "/healthz/readiness")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}

	select {
	case <-closed:
	default:
		t.Error("backend was not closed")
	}
	assert.Same(t, server.Registry(), gotRegistry, "auth metrics share the served registry")
	assert.Contains(t, h.logs.String(), "shutdown complete")
}

func TestServe_MetricsDisabled(t *testing.T) {
	h := newHarness(t)
	h.deps.ObservabilityServerFactory = func(string, string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
		t.Error("observability server must not be created")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.runContext(ctx, "", "serve", "--metrics-addr", "")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(h.logs.String(), "auth service ready")
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestServe_BackendFailure(t *testing.T) {
	h := newHarness(t)
	h.deps.OpenBackend = func(context.Context, *config.Config, *slog.Logger, prometheus.Registerer) (*Backend, error) {
		return nil, errors.New("connection refused")
	}

	_, err := h.run("", "serve", "--metrics-addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMonitorServerErrors(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("listener died")
		monitorServerErrors(ctx, cancel, errCh, "observability", logger)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)
		monitorServerErrors(ctx, cancel, errCh, "observability", logger)
		assert.NoError(t, ctx.Err())
	})
}
