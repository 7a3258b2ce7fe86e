// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReloader struct{ triggered int }

func (f *fakeReloader) TriggerReload() { f.triggered++ }

func newTestAPI(t *testing.T) (*RestApi, *store.Store, *fakeReloader) {
	t.Helper()
	conn, err := store.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	st := store.New(conn, "sqlite3", 24, nil, nil)
	reloader := &fakeReloader{}
	return New(st, reloader), st, reloader
}

func newRouter(api *RestApi) *mux.Router {
	r := mux.NewRouter()
	api.MountRoutes(r)
	return r
}

func TestGetStatusReportsOK(t *testing.T) {
	api, _, _ := newTestAPI(t)
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rw.Body.String())
}

func TestPostReloadTriggersEngineReload(t *testing.T) {
	api, _, reloader := newTestAPI(t)
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, 1, reloader.triggered)
}

func TestGetHistoryRejectsMalformedStartTime(t *testing.T) {
	api, _, _ := newTestAPI(t)
	r := newRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/api/history/not-a-time/10", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusBadRequest, rw.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}

func TestGetHistoryReturnsValueShape(t *testing.T) {
	api, st, _ := newTestAPI(t)
	r := newRouter(api)

	ch := make(chan tag.TagValue, 1)
	now := time.Now().UTC().Truncate(time.Second)
	ch <- tag.TagValue{Name: "temp", Type: tag.Float, Status: 0, UpdateTime: now, Value: tag.Value{Float: 21.5}}
	ctx, cancel := context.WithCancel(context.Background())
	go st.Run(ctx, ch)
	defer cancel()

	require.Eventually(t, func() bool {
		rows, err := st.GetHistory(context.Background(), now.Add(-time.Minute), 10)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	path := "/api/history/" + now.Add(-time.Minute).Format(time.RFC3339) + "/10"
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var rows []valueEntry
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "temp", rows[0].ID)
	assert.InDelta(t, 21.5, rows[0].Vl.(float64), 1e-9)
}

func TestPostConfigThenGetConfigRoundTrips(t *testing.T) {
	api, _, _ := newTestAPI(t)
	r := newRouter(api)

	cfg := store.Config{
		Connectors: []store.ConnectorRow{{ID: "sim0", Cycle: 1, ConnectionString: "connector=simulator", UpdatedAt: "2026-01-01T00:00:00Z"}},
		Tags:       []store.TagRow{{ID: "t1", Type: "float", Min: 0, Max: 100, ConnectorName: "sim0", Source: "func=sin;period=60;scale=1", UpdatedAt: "2026-01-01T00:00:00Z"}},
	}
	body, err := json.Marshal(cfg)
	require.NoError(t, err)

	postReq := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewReader(body))
	postRw := httptest.NewRecorder()
	r.ServeHTTP(postRw, postReq)
	require.Equal(t, http.StatusOK, postRw.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	getRw := httptest.NewRecorder()
	r.ServeHTTP(getRw, getReq)
	require.Equal(t, http.StatusOK, getRw.Code)

	var got store.Config
	require.NoError(t, json.Unmarshal(getRw.Body.Bytes(), &got))
	require.Len(t, got.Connectors, 1)
	assert.Equal(t, "sim0", got.Connectors[0].ID)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "t1", got.Tags[0].ID)
}
