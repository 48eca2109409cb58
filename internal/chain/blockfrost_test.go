package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockfrost_ListTransfers(t *testing.T) {
	var gotPath, gotQuery, gotProject string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotProject = r.Header.Get("project_id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"tx_hash":"abc","tx_index":0,"block_height":100,"block_time":1690000000},
			{"tx_hash":"def","tx_index":3,"block_height":99,"block_time":1689990000}
		]`))
	}))
	defer srv.Close()

	c := NewBlockfrostClient(srv.URL+"/", "proj123", srv.Client(), 5*time.Second)
	transfers, err := c.ListTransfers(context.Background(), "addr1xyz", 500)
	require.NoError(t, err)

	assert.Equal(t, "/addresses/addr1xyz/transactions", gotPath)
	assert.Equal(t, "count=100&order=desc", gotQuery)
	assert.Equal(t, "proj123", gotProject)

	require.Len(t, transfers, 2)
	assert.Equal(t, "abc", transfers[0].Hash)
	assert.Equal(t, uint64(100), transfers[0].Block)
	assert.Equal(t, int64(1690000000), transfers[0].Timestamp)
	assert.Equal(t, "ADA", transfers[0].Asset)
	assert.Equal(t, "lovelace", transfers[0].Unit)
}

func TestBlockfrost_UnknownAddressIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code":404,"error":"Not Found","message":"The requested component has not been found."}`))
	}))
	defer srv.Close()

	c := NewBlockfrostClient(srv.URL, "p", srv.Client(), time.Second)
	transfers, err := c.ListTransfers(context.Background(), "addr1xyz", 10)
	require.Error(t, err)
	assert.Nil(t, transfers)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ProviderBlockfrost, fe.Provider)
	assert.Equal(t, opListTransfers, fe.Op)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetTransaction(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockfrost_GetTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/txs/abc", r.URL.Path)
		_, _ = w.Write([]byte(`{"hash":"abc","block_height":100}`))
	}))
	defer srv.Close()

	c := NewBlockfrostClient(srv.URL, "p", srv.Client(), time.Second)
	tx, err := c.GetTransaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash":"abc","block_height":100}`, string(tx))
}

func TestBlockfrost_ServerErrorBecomesFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status_code":403,"error":"Forbidden","message":"Invalid project token."}`))
	}))
	defer srv.Close()

	c := NewBlockfrostClient(srv.URL, "bad", srv.Client(), time.Second)
	_, err := c.ListTransfers(context.Background(), "addr1", 10)
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ProviderBlockfrost, fe.Provider)
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.Contains(t, fe.Error(), "Invalid project token.")

	assert.Error(t, c.Ping(context.Background()))
}

func TestBlockfrost_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewBlockfrostClient(url, "p", nil, time.Second)
	_, err := c.ListTransfers(context.Background(), "addr1", 10)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestBlockfrost_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"is_healthy":true}`))
	}))
	defer srv.Close()

	c := NewBlockfrostClient(srv.URL, "p", srv.Client(), time.Second)
	assert.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, Cardano, c.Chain())
}

func TestBlockfrost_Timeout(t *testing.T) {
	assert.Equal(t, 15*time.Second, NewBlockfrostClient("http://x", "p", nil, 0).timeout)
	assert.Equal(t, 15*time.Second, NewBlockfrostClient("http://x", "p", nil, time.Minute).timeout)
	assert.Equal(t, 2*time.Second, NewBlockfrostClient("http://x", "p", nil, 2*time.Second).timeout)
}
