// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	RetryBaseDelay = time.Millisecond
}

// sequenceServer answers with statuses in order, repeating the last one.
func sequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		w.WriteHeader(statuses[min(n, len(statuses))-1])
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestPolicyDo(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		statuses   []int
		wantStatus int
		wantCalls  int32
	}{
		{
			name:       "first attempt succeeds",
			policy:     Policy{MaxRetries: 3, BaseDelay: time.Millisecond, RetryOn: TransientStatuses},
			statuses:   []int{http.StatusOK},
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "retries listed statuses",
			policy:     Policy{MaxRetries: 3, BaseDelay: time.Millisecond, RetryOn: TransientStatuses},
			statuses:   []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusOK},
			wantStatus: http.StatusOK,
			wantCalls:  3,
		},
		{
			name:       "returns last response when retries run out",
			policy:     Policy{MaxRetries: 2, BaseDelay: time.Millisecond, RetryOn: TransientStatuses},
			statuses:   []int{http.StatusServiceUnavailable},
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  3,
		},
		{
			name:       "default retry count",
			policy:     Policy{BaseDelay: time.Millisecond, RetryOn: []int{http.StatusGatewayTimeout}},
			statuses:   []int{http.StatusGatewayTimeout},
			wantStatus: http.StatusGatewayTimeout,
			wantCalls:  defaultMaxRetries + 1,
		},
		{
			name:       "unlisted status passes through",
			policy:     Policy{MaxRetries: 3, BaseDelay: time.Millisecond, RetryOn: []int{http.StatusTooManyRequests}},
			statuses:   []int{http.StatusNotFound},
			wantStatus: http.StatusNotFound,
			wantCalls:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, calls := sequenceServer(t, tt.statuses...)
			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			require.NoError(t, err)

			resp, err := tt.policy.Do(context.Background(), ts.Client(), req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))
		})
	}
}

func TestPolicyDoCancelledDuringBackoff(t *testing.T) {
	ts, calls := sequenceServer(t, http.StatusTooManyRequests)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	p := Policy{MaxRetries: 5, BaseDelay: time.Hour, RetryOn: TransientStatuses}
	_, err = p.Do(ctx, ts.Client(), req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFetcherGivesUpAfterRetries(t *testing.T) {
	ts, calls := sequenceServer(t, http.StatusBadRequest)

	f := &Fetcher{Client: ts.Client(), Policy: Policy{MaxRetries: 2, BaseDelay: time.Millisecond, RetryOn: TransientStatuses}}
	_, err := f.Get(context.Background(), ts.URL)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), time.Millisecond))
	require.NoError(t, Wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
