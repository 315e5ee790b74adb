package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calculator-service/internal/cache"
	"calculator-service/internal/coordinator"
)

// brokenStore fails every read, simulating an unavailable cache volume.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (cache.Entry, bool, error) {
	return cache.Entry{}, false, &cache.StorageError{Op: "get", Err: errors.New("disk gone")}
}
func (brokenStore) Put(context.Context, string, cache.Entry) error { return nil }
func (brokenStore) Delete(context.Context, string) error           { return nil }
func (brokenStore) Close() error                                   { return nil }

func newCalculateHandler(t *testing.T) *CalculateHandler {
	t.Helper()
	store := cache.NewMemoryStore(0, time.Minute)
	t.Cleanup(func() { store.Close() })
	return NewCalculateHandler(coordinator.New(store, nil, time.Hour))
}

func postCalculate(t *testing.T, h *CalculateHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Calculate(rr, req)
	return rr
}

func TestCalculateSuccess(t *testing.T) {
	h := newCalculateHandler(t)

	rr := postCalculate(t, h, `{"op":"add","operands":[2,3]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":5,"cached":false}`, rr.Body.String())

	// The same request again is served from the cache.
	rr = postCalculate(t, h, `{"op":"add","operands":[2,3]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":5,"cached":true}`, rr.Body.String())
}

func TestCalculateExpression(t *testing.T) {
	h := newCalculateHandler(t)

	rr := postCalculate(t, h, `{"expr":"2+3*4"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":14,"cached":false}`, rr.Body.String())
}

func TestCalculateEquivalentRequestsShareCacheEntry(t *testing.T) {
	h := newCalculateHandler(t)

	rr := postCalculate(t, h, `{"op":"multiply","operands":[3,7]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postCalculate(t, h, `{"op":"multiply","operands":[7,3]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":21,"cached":true}`, rr.Body.String())
}

func TestCalculateBadRequests(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"malformed json", `{"op":`, http.StatusBadRequest, "parse"},
		{"unknown field", `{"operation":"add"}`, http.StatusBadRequest, "parse"},
		{"unknown operator", `{"op":"modulo","operands":[1,2]}`, http.StatusBadRequest, "parse"},
		{"op and expr", `{"op":"add","operands":[1],"expr":"1+1"}`, http.StatusBadRequest, "parse"},
		{"neither op nor expr", `{}`, http.StatusBadRequest, "parse"},
		{"bad expression", `{"expr":"2++"}`, http.StatusBadRequest, "parse"},
		{"divide arity", `{"op":"divide","operands":[1,2,3]}`, http.StatusBadRequest, "arity"},
		{"add arity", `{"op":"add","operands":[1]}`, http.StatusBadRequest, "arity"},
		{"division by zero", `{"op":"divide","operands":[1,0]}`, http.StatusUnprocessableEntity, "division_by_zero"},
		{"expr division by zero", `{"expr":"1/0"}`, http.StatusUnprocessableEntity, "division_by_zero"},
		{"intdiv fractional operand", `{"op":"intdiv","operands":[7.5,2]}`, http.StatusUnprocessableEntity, "invalid_operand"},
		{"overflow to infinity", `{"op":"multiply","operands":[1e308,10]}`, http.StatusUnprocessableEntity, "non_finite"},
		{"expr overflow", `{"expr":"1e308*10"}`, http.StatusUnprocessableEntity, "non_finite"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newCalculateHandler(t)
			rr := postCalculate(t, h, tc.body)
			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), `"kind":"`+tc.wantKind+`"`)
		})
	}
}

// A finite-operand request whose result overflows the double range must get
// a real error response, never a success header with an empty body.
func TestCalculateNonFiniteResultHasErrorBody(t *testing.T) {
	h := newCalculateHandler(t)

	rr := postCalculate(t, h, `{"op":"multiply","operands":[1e308,10]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NotEmpty(t, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"kind":"non_finite"`)

	// The failure is deterministic, so the repeat is served from the cache
	// with the same status.
	rr = postCalculate(t, h, `{"op":"multiply","operands":[1e308,10]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"kind":"non_finite"`)
}

func TestCalculateStorageFailureIs500(t *testing.T) {
	h := NewCalculateHandler(coordinator.New(brokenStore{}, nil, time.Hour))

	rr := postCalculate(t, h, `{"op":"add","operands":[2,3]}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"kind":"storage"`)
}
