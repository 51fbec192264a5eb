package log

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name string
		in   []any
		keys []string
	}{
		{"empty", nil, nil},
		{"pairs", []any{"vin", "5YJ3E1EA", "rpm", 1726, "ok", true}, []string{"vin", "rpm", "ok"}},
		{"time", []any{"at", now}, []string{"at"}},
		{"error only", []any{err}, []string{"error"}},
		{"zap field passthrough", []any{zap.String("x", "y"), "pid", "0C"}, []string{"x", "pid"}},
		{"unpaired tail", []any{"k", "v", "dangling"}, []string{"k", "arg#2"}},
		{"non-string key", []any{123, "value"}, []string{"invalid_key_1"}},
		{"string slice", []any{"groups", []string{"vehicle:1", "user:2"}}, []string{"groups"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.in...)
			require.Len(t, fields, len(tt.keys))
			for i, f := range fields {
				assert.Equal(t, tt.keys[i], f.Key)
			}
		})
	}
}

func TestToFieldsTypedValues(t *testing.T) {
	fields := toFields("speed", 88.5, "count", int64(3), "raw", []byte{0x41})

	require.Len(t, fields, 3)
	assert.Equal(t, zapcore.Float64Type, fields[0].Type)
	assert.Equal(t, zapcore.Int64Type, fields[1].Type)
	assert.Equal(t, zapcore.BinaryType, fields[2].Type)
}

func TestToFieldsRedactsSecrets(t *testing.T) {
	fields := toFields("pin", "1234", "accessToken", "abc", "vehicleID", "v1")

	require.Len(t, fields, 3)
	assert.Equal(t, "[REDACTED]", fields[0].String)
	assert.Equal(t, "[REDACTED]", fields[1].String)
	assert.Equal(t, "v1", fields[2].String)
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, Std(), FromContext(context.Background()))

	l := NewNopLogger().WithValues("session", "abc")
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	require.Error(t, SetLevel("loud"))
	require.NoError(t, SetLevel("info"))
}

func TestOptionsValidate(t *testing.T) {
	o := NewOptions()
	assert.Empty(t, o.Validate())

	o.Level = "chatty"
	o.Format = "xml"
	assert.Len(t, o.Validate(), 2)
}
