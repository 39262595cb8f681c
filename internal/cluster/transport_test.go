package cluster

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSendJSON tests SendJSON against a live test server with various answers.
func TestSendJSON(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverBody     string
		wantErr        error
		contextTimeout bool
	}{
		{
			name:           "successful call",
			serverResponse: http.StatusOK,
			serverBody:     `[["127.0.0.1", 5001]]`,
		},
		{
			name:           "not found maps to lookup failure",
			serverResponse: http.StatusNotFound,
			serverBody:     `{"status":"error","error":"unknown group 7"}`,
			wantErr:        ErrLookup,
		},
		{
			name:           "bad request maps to shard computation failure",
			serverResponse: http.StatusBadRequest,
			serverBody:     `{"status":"error","error":"missing field index"}`,
			wantErr:        ErrShardComputation,
		},
		{
			name:           "server error maps to transport failure",
			serverResponse: http.StatusInternalServerError,
			serverBody:     "boom",
			wantErr:        ErrTransport,
		},
		{
			name:           "unparsable body",
			serverResponse: http.StatusOK,
			serverBody:     `{"not": "a list"}`,
			wantErr:        ErrTransport,
		},
		{
			name:           "context timeout",
			serverResponse: http.StatusOK,
			serverBody:     `[]`,
			wantErr:        ErrTransport,
			contextTimeout: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/parallelism-entity", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				if tt.contextTimeout {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.serverResponse)
				_, _ = w.Write([]byte(tt.serverBody))
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.contextTimeout {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Millisecond)
				defer cancel()
			}

			var out []Member
			err := SendJSON(ctx, NewHTTPTransport(time.Second), server.URL, http.MethodPut, "/parallelism-entity",
				JoinRequest{Entity: 0, Address: "127.0.0.1", Port: 5001}, &out)

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, []Member{{Host: "127.0.0.1", Port: 5001}}, out)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.contextTimeout {
				assert.True(t, IsTimeout(err))
			}
		})
	}
}

func TestSendWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		assert.Empty(t, r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	data, err := NewHTTPTransport(time.Second).Send(context.Background(), server.URL+"/", "/parallelism-entity", http.MethodGet, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestSendUnreachable(t *testing.T) {
	_, err := NewHTTPTransport(time.Second).Send(context.Background(), "http://127.0.0.1:1", "/health", http.MethodGet, nil)
	assert.ErrorIs(t, err, ErrTransport)

	_, err = NewHTTPTransport(time.Second).Send(context.Background(), "://invalid-url", "/health", http.MethodGet, nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestStatusErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, errors.Join(ErrLookup, errors.New("unknown title \"Nope\"")))
	}))
	defer server.Close()

	_, err := NewHTTPTransport(time.Second).Send(context.Background(), server.URL, "/knn", http.MethodPost, []byte(`{}`))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Message, `unknown title "Nope"`)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusCode(ErrLookup))
	assert.Equal(t, http.StatusBadRequest, StatusCode(ErrShardComputation))
	assert.Equal(t, http.StatusBadRequest, StatusCode(ErrInvalidArgument))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(ErrEmptyGroup))
	assert.Equal(t, http.StatusBadGateway, StatusCode(ErrTransport))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("other")))
}

// TestWriteErrorEnvelope checks the error envelope a handler writes and that
// a peer reading it gets the message and the mapped sentinel back.
func TestWriteErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, errors.Join(ErrLookup, errors.New("no such title")))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":"lookup failure\nno such title"}`, string(data))
	assert.Equal(t, StatusFailed, NewErrorResponse("x").Status)
	assert.Equal(t, StatusOK, NewOKResponse().Status)

	_, err = NewHTTPTransport(time.Second).Send(context.Background(), srv.URL, "/", http.MethodGet, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "lookup failure\nno such title", se.Message)
	assert.ErrorIs(t, err, ErrLookup)
}
