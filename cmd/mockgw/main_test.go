package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/ecommerce/tools/loadgen/internal/mockgw"
)

func TestOptionsConfig(t *testing.T) {
	opts := options{
		addr:            ":9999",
		products:        5,
		errorRate:       0.1,
		unavailableRate: 0.2,
		latency:         10 * time.Millisecond,
		down:            " order-service, ,shipping-service",
		seed:            7,
	}

	cfg := opts.config()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 5, cfg.Products)
	assert.Equal(t, mockgw.Faults{ErrorRate: 0.1, UnavailableRate: 0.2, Latency: 10 * time.Millisecond}, cfg.Faults)
	assert.Equal(t, []string{mockgw.ServiceOrder, mockgw.ServiceShipping}, cfg.Down)
	assert.Equal(t, uint64(7), cfg.Seed)

	assert.Empty(t, (&options{}).config().Down)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "bad log level", args: []string{"-log-level", "loud"}, stderr: "Error:"},
		{name: "bad rates", args: []string{"-error-rate", "0.8", "-unavailable-rate", "0.5", "-log-level", "error"}, stderr: "fault rates"},
		{name: "unknown service", args: []string{"-down", "cart-service", "-log-level", "error"}, stderr: "unknown service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			assert.Equal(t, 1, run(context.Background(), tt.args, &stderr))
			assert.Contains(t, stderr.String(), tt.stderr)
		})
	}
}

func TestRun_Shutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var stderr bytes.Buffer
	assert.Equal(t, 0, run(ctx, []string{"-addr", "127.0.0.1:0", "-log-level", "error"}, &stderr))
}

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), []string{"-h"}, &stderr))
	assert.Contains(t, stderr.String(), "-unavailable-rate")
}
