package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to place order: %w", InsufficientFunds.Explain("available %d", 10))

	assert.True(t, Is(err, InsufficientFunds))
	assert.False(t, Is(err, InvalidAmount))
	assert.False(t, Is(err, Unprocessable))
	assert.Contains(t, err.Error(), "available 10")
}

func TestWrapKeepsStatus(t *testing.T) {
	cause := fmt.Errorf("duplicate key")
	err := Conflict.Explain("duplication of key").Wrap(cause)

	assert.Equal(t, http.StatusConflict, err.StatusCode())
	assert.True(t, Is(err, Conflict))
	assert.ErrorIs(t, err, cause)
}

func TestToProblem(t *testing.T) {
	tests := map[string]struct {
		err    error
		status int
		typ    string
	}{
		"insufficient funds": {InsufficientFunds.Explain("x"), http.StatusUnprocessableEntity, TypeInsufficientFunds},
		"price unavailable":  {PriceUnavailable.Explain("x"), http.StatusServiceUnavailable, TypePriceUnavailable},
		"invalid amount":     {InvalidAmount.Explain("x"), http.StatusBadRequest, TypeInvalidAmount},
		"state transition":   {InvalidStateTransition.Explain("x"), http.StatusConflict, TypeInvalidStateTransition},
		"invalid":            {Invalid.Explain("x"), http.StatusBadRequest, TypeValidationError},
		"unauthorized":       {Unauthorized.Explain("x"), http.StatusUnauthorized, TypeUnauthorized},
		"forbidden":          {Forbidden.Explain("x"), http.StatusForbidden, TypeForbidden},
		"not found":          {NotFound.Explain("x"), http.StatusNotFound, TypeNotFound},
		"conflict":           {Conflict.Explain("x"), http.StatusConflict, TypeConflict},
		"rate limited":       {Status(http.StatusTooManyRequests).Explain("x"), http.StatusTooManyRequests, TypeRateLimited},
		"unknown":            {fmt.Errorf("connection refused"), http.StatusInternalServerError, TypeInternalError},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			p := ToProblem(tc.err, "/api/v1/orders")
			assert.Equal(t, tc.status, p.Status)
			assert.Equal(t, tc.typ, p.Type)
			assert.Equal(t, "/api/v1/orders", p.Instance)
		})
	}
}

func TestToProblemHidesInternals(t *testing.T) {
	p := ToProblem(fmt.Errorf("pq: password authentication failed"), "/x")
	assert.NotContains(t, p.Detail, "password")
}

func TestProblemJSON(t *testing.T) {
	err := Invalid.Explain("invalid request").
		WithField("required", "amount", "amount is required").
		WithField("uuid", "bank_account_id", "must be a valid UUID")
	p := ToProblem(err, "/api/v1/withdrawals").WithTraceID("abc").WithExtra("timestamp", "now")

	body, jerr := json.Marshal(p)
	require.NoError(t, jerr)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.EqualValues(t, 400, out["status"])
	assert.Equal(t, "invalid request", out["detail"])
	assert.Equal(t, "abc", out["trace_id"])
	assert.Equal(t, "now", out["timestamp"])
	assert.Len(t, out["errors"], 2)
}
