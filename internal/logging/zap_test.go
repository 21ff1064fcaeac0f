package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WritesFieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core)).With("module", "provisioner")

	ctx := context.Background()
	log.Debug(ctx, "dbg")
	log.Info(ctx, "registered", "tenant_db", "tn_u1_acme")
	log.Warn(ctx, "slow")
	log.Error(ctx, "failed", "kind", "ProvisioningFailed")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "registered", entries[1].Message)
	fields := entries[1].ContextMap()
	assert.Equal(t, "provisioner", fields["module"])
	assert.Equal(t, "tn_u1_acme", fields["tenant_db"])

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "ProvisioningFailed", entries[3].ContextMap()["kind"])
}

func TestZapLogger_AddsRequestIDFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core))

	log.Warn(WithRequestID(context.Background(), "req-7"), "slow", "route", "/v1/onboarding")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "/v1/onboarding", fields["route"])
}

func TestRequestID_EmptyWithoutValue(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
}
