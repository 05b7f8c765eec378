package pkg

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

func newTestApiMetadata(url string) *ApiMetadata {
	return &ApiMetadata{
		URL:        url,
		Timeout:    time.Second,
		Retries:    2,
		RetryDelay: time.Millisecond,
	}
}

func TestFetchSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleDocument))
	}))
	defer server.Close()

	snapshot, err := newTestApiMetadata(server.URL).FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ISR", "AFG", "OWID_WRL", "BBB", "FRA"}, snapshot.Codes)
}

func TestFetchSnapshotAppliesCountriesFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleDocument))
	}))
	defer server.Close()

	api := newTestApiMetadata(server.URL)
	api.CountriesFilter = []string{"FRA", "ISR"}
	snapshot, err := api.FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ISR", "FRA"}, snapshot.Codes)
}

func TestFetchSnapshotRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			_, _ = w.Write([]byte(`{"ISR": {"total_vacc`))
		default:
			_, _ = w.Write([]byte(sampleDocument))
		}
	}))
	defer server.Close()

	snapshot, err := newTestApiMetadata(server.URL).FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Len(t, snapshot.Codes, 5)
}

func TestFetchSnapshotGivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	snapshot, err := newTestApiMetadata(server.URL).FetchSnapshot(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Nil(t, snapshot)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchSnapshotStopsOnCancelledContext(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	api := newTestApiMetadata(server.URL)
	api.Retries = 100
	api.RetryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for atomic.LoadInt32(&calls) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := api.FetchSnapshot(ctx)

	assert.ErrorIs(t, err, ErrFetch)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
