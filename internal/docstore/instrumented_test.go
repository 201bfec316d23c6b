package docstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendchat-service/internal/observability"
)

func TestInstrumentedCountsResults(t *testing.T) {
	inner, mr := newRedisStore(t)
	s := Instrument(inner)
	ctx := context.Background()

	okBefore := testutil.ToFloat64(observability.StoreOpCounter("metrics_users", "set", "ok"))
	missBefore := testutil.ToFloat64(observability.StoreOpCounter("metrics_users", "get", "not_found"))
	downBefore := testutil.ToFloat64(observability.StoreOpCounter("metrics_users", "delete", "unavailable"))

	require.NoError(t, s.Set(ctx, "metrics_users", "u1", testDoc{Name: "a"}))
	_, err := s.Get(ctx, "metrics_users", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	mr.SetError("ERR simulated outage")
	require.ErrorIs(t, s.Delete(ctx, "metrics_users", "u1"), ErrUnavailable)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(observability.StoreOpCounter("metrics_users", "set", "ok")))
	assert.Equal(t, missBefore+1, testutil.ToFloat64(observability.StoreOpCounter("metrics_users", "get", "not_found")))
	assert.Equal(t, downBefore+1, testutil.ToFloat64(observability.StoreOpCounter("metrics_users", "delete", "unavailable")))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "not_found", resultLabel(ErrNotFound))
	assert.Equal(t, "unavailable", resultLabel(unavailable("op", assert.AnError)))
	assert.Equal(t, "conflict", resultLabel(ErrConflict))
	assert.Equal(t, "error", resultLabel(assert.AnError))
}
