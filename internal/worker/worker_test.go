package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/knnshard/internal/cluster"
	"github.com/dreamware/knnshard/internal/directory"
	"github.com/dreamware/knnshard/internal/shard"
)

var self = cluster.Member{Host: "127.0.0.1", Port: 5001}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lineCollection returns n items on a line, item i at x = i.
func lineCollection(t *testing.T, n int) *shard.Collection {
	t.Helper()
	items := make([]shard.Item, n)
	for i := range items {
		items[i] = shard.Item{ID: i + 1, Label: fmt.Sprintf("m%d", i), Vector: []float64{float64(i)}}
	}
	c, err := shard.NewCollection(items)
	require.NoError(t, err)
	return c
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, KNNPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHandleKNN exercises POST /knn.
func TestHandleKNN(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantStatusCode int
		wantBody       string
	}{
		{
			name:           "first window",
			body:           `{"num_recs": 2, "movie_title": "m0", "index": 0, "length": 2}`,
			wantStatusCode: http.StatusOK,
			wantBody:       `[["2","m1","1"],["3","m2","2"]]`,
		},
		{
			name:           "last window takes the remainder",
			body:           `{"num_recs": 10, "movie_title": "m0", "index": 1, "length": 2}`,
			wantStatusCode: http.StatusOK,
			wantBody:       `[["6","m5","5"],["7","m6","6"],["8","m7","7"],["9","m8","8"],["10","m9","9"]]`,
		},
		{
			name:           "numeric strings",
			body:           `{"num_recs": "1", "movie_title": "m9", "index": "1", "length": "2"}`,
			wantStatusCode: http.StatusOK,
			wantBody:       `[["9","m8","1"]]`,
		},
		{
			name:           "unknown title",
			body:           `{"num_recs": 2, "movie_title": "nope", "index": 0, "length": 2}`,
			wantStatusCode: http.StatusNotFound,
		},
		{
			name:           "missing field",
			body:           `{"num_recs": 2, "movie_title": "m0", "index": 0}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "non-numeric field",
			body:           `{"num_recs": "two", "movie_title": "m0", "index": 0, "length": 2}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "index out of range",
			body:           `{"num_recs": 2, "movie_title": "m0", "index": 2, "length": 2}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "not json",
			body:           `num_recs=2`,
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(lineCollection(t, 10), self, 0, quietLogger())
			rec := post(t, w.Handler(), tt.body)
			assert.Equal(t, tt.wantStatusCode, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
				return
			}
			var resp cluster.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, cluster.StatusFailed, resp.Status)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestInfoCounters(t *testing.T) {
	w := New(lineCollection(t, 10), self, 3, quietLogger())
	h := w.Handler()

	post(t, h, `{"num_recs": 1, "movie_title": "m0", "index": 0, "length": 1}`)
	post(t, h, `{"num_recs": 1, "movie_title": "m0", "index": 0, "length": 1}`)
	post(t, h, `{"num_recs": 1, "movie_title": "zz", "index": 0, "length": 1}`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, Info{
		Member:        "127.0.0.1:5001",
		Items:         10,
		Dim:           1,
		MaxConcurrent: 3,
		Served:        2,
		Failed:        1,
	}, info)
}

func TestHealth(t *testing.T) {
	w := New(lineCollection(t, 1), self, 0, quietLogger())
	rec := httptest.NewRecorder()
	w.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestComputeHonorsConcurrencyCap holds the only slot and checks a second
// computation gives up when its context ends.
func TestComputeHonorsConcurrencyCap(t *testing.T) {
	w := New(lineCollection(t, 4), self, 1, quietLogger())
	require.NoError(t, w.sem.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Compute(ctx, cluster.ShardRequest{MovieTitle: "m0", NumRecs: 1, Index: 0, Length: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	w.sem.Release(1)
	got, err := w.Compute(context.Background(), cluster.ShardRequest{MovieTitle: "m0", NumRecs: 1, Index: 0, Length: 1})
	require.NoError(t, err)
	assert.Equal(t, []cluster.Neighbor{{ID: 2, Label: "m1", Distance: 1}}, got)
}

func TestRegister(t *testing.T) {
	dir := directory.New(directory.NewMemoryStore(directory.DefaultGroup),
		cluster.Member{Host: "127.0.0.1", Port: 5000}, quietLogger())
	srv := httptest.NewServer(dir.Handler())
	defer srv.Close()

	members, err := Register(context.Background(), cluster.NewHTTPTransport(time.Second), Registration{
		DirectoryURL: srv.URL,
		Self:         self,
		Attempts:     1,
	}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []cluster.Member{self}, members)
}

func TestRegisterRetriesUntilDirectoryIsUp(t *testing.T) {
	dir := directory.New(directory.NewMemoryStore(directory.DefaultGroup),
		cluster.Member{Host: "127.0.0.1", Port: 5000}, quietLogger())
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		dir.Handler().ServeHTTP(rw, r)
	}))
	defer srv.Close()

	members, err := Register(context.Background(), cluster.NewHTTPTransport(time.Second), Registration{
		DirectoryURL: srv.URL,
		Self:         self,
		Attempts:     5,
		Interval:     time.Millisecond,
	}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []cluster.Member{self}, members)
}

func TestRegisterGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Register(context.Background(), cluster.NewHTTPTransport(time.Second), Registration{
		DirectoryURL: srv.URL,
		Self:         self,
		Attempts:     3,
		Interval:     time.Millisecond,
	}, quietLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrTransport)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRegisterStopsOnRefusal(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unknown group", http.StatusNotFound, cluster.ErrLookup},
		{"rejected member", http.StatusBadRequest, cluster.ErrShardComputation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				cluster.WriteJSON(rw, tt.status, cluster.NewErrorResponse("refused"))
			}))
			defer srv.Close()

			_, err := Register(context.Background(), cluster.NewHTTPTransport(time.Second), Registration{
				DirectoryURL: srv.URL,
				Self:         self,
				Group:        7,
				Attempts:     5,
				Interval:     time.Millisecond,
			}, quietLogger())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

// TestKeepRegisteredRejoinsAfterEviction evicts the worker and waits for the
// next tick to put it back.
func TestKeepRegisteredRejoinsAfterEviction(t *testing.T) {
	dir := directory.New(directory.NewMemoryStore(directory.DefaultGroup),
		cluster.Member{Host: "127.0.0.1", Port: 5000}, quietLogger())
	srv := httptest.NewServer(dir.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := cluster.NewHTTPTransport(time.Second)
	reg := Registration{DirectoryURL: srv.URL, Self: self, Attempts: 1}

	_, err := Register(ctx, tr, reg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, dir.Evict(ctx, directory.DefaultGroup, self))

	done := make(chan struct{})
	go func() {
		defer close(done)
		KeepRegistered(ctx, tr, reg, 10*time.Millisecond, quietLogger())
	}()

	assert.Eventually(t, func() bool {
		members, err := dir.List(ctx, directory.DefaultGroup)
		return err == nil && len(members) == 1 && members[0] == self
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("KeepRegistered did not return after cancel")
	}
}

func TestRegisterToleratesUnparsableAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write([]byte("welcome"))
	}))
	defer srv.Close()

	members, err := Register(context.Background(), cluster.NewHTTPTransport(time.Second), Registration{
		DirectoryURL: srv.URL,
		Self:         self,
		Attempts:     1,
	}, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, members)
}

// TestConcurrentRequests runs many computations through a capped worker.
func TestConcurrentRequests(t *testing.T) {
	w := New(lineCollection(t, 50), self, 2, quietLogger())
	srv := httptest.NewServer(w.Handler())
	defer srv.Close()

	tr := cluster.NewHTTPTransport(5 * time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got []cluster.Neighbor
			err := cluster.SendJSON(context.Background(), tr, srv.URL, http.MethodPost, KNNPath,
				cluster.ShardRequest{MovieTitle: "m0", NumRecs: 3, Index: 0, Length: 1}, &got)
			assert.NoError(t, err)
			assert.Len(t, got, 3)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), w.Info().Served)
	assert.Equal(t, int64(0), w.Info().InFlight)
}
