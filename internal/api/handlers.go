// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/plantdata/rtds/internal/store"
)

// stateEntry is the {id,ds,vl} shape §6's GET /api/state documents.
type stateEntry struct {
	ID string      `json:"id"`
	Ds string      `json:"ds"`
	Vl interface{} `json:"vl"`
}

// valueEntry is the {id,tm,tp,st,vl} shape §6's GET /api/current and
// GET /api/history/<start_time>/<size> document.
type valueEntry struct {
	ID string      `json:"id"`
	Tm string      `json:"tm"`
	Tp string      `json:"tp"`
	St int         `json:"st"`
	Vl interface{} `json:"vl"`
}

func historyValue(r store.HistoryRow) valueEntry {
	return valueEntry{ID: r.TagID, Tm: r.TagTime.UTC().Format(time.RFC3339Nano), Tp: r.Type, St: r.Status, Vl: valueSlot(r.BoolValue, r.IntValue, r.FloatValue, r.StrValue)}
}

func currentValue(r store.CurrentRow) valueEntry {
	return valueEntry{ID: r.TagID, Tm: r.TagTime.UTC().Format(time.RFC3339Nano), Tp: r.Type, St: r.Status, Vl: valueSlot(r.BoolValue, r.IntValue, r.FloatValue, r.StrValue)}
}

// valueSlot picks whichever typed column is populated, matching §4.7's
// "one populated value slot per type" projection.
func valueSlot(b sql.NullBool, i sql.NullInt64, f sql.NullFloat64, s sql.NullString) interface{} {
	switch {
	case b.Valid:
		return b.Bool
	case i.Valid:
		return i.Int64
	case f.Valid:
		return f.Float64
	case s.Valid:
		return s.String
	default:
		return nil
	}
}

func (api *RestApi) getConfig(rw http.ResponseWriter, r *http.Request) {
	cfg, err := api.Store.GetConfig(r.Context())
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	writeJSON(rw, cfg)
}

func (api *RestApi) postConfig(rw http.ResponseWriter, r *http.Request) {
	var cfg store.Config
	if err := decode(r.Body, &cfg); err != nil {
		handleError(fmt.Errorf("parsing request body failed: %w", err), http.StatusBadRequest, rw)
		return
	}
	if err := api.Store.SetConfig(r.Context(), cfg); err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

func (api *RestApi) postReload(rw http.ResponseWriter, r *http.Request) {
	api.Reloader.TriggerReload()
	rw.WriteHeader(http.StatusOK)
}

func (api *RestApi) getStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, map[string]string{"status": "OK"})
}

func (api *RestApi) getState(rw http.ResponseWriter, r *http.Request) {
	rows, err := api.Store.GetState(r.Context())
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	out := make([]stateEntry, len(rows))
	for i, row := range rows {
		out[i] = stateEntry{ID: row.ID, Ds: row.Description, Vl: row.Value}
	}
	writeJSON(rw, out)
}

func (api *RestApi) getCurrent(rw http.ResponseWriter, r *http.Request) {
	rows, err := api.Store.GetCurrent(r.Context())
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	out := make([]valueEntry, len(rows))
	for i, row := range rows {
		out[i] = currentValue(row)
	}
	writeJSON(rw, out)
}

// getHistory implements §9 Open Question #1's resolution: start_time is
// parsed strictly as RFC3339; malformed input is a 400, not a silent
// now-minus-24h fallback.
func (api *RestApi) getHistory(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	startTime, err := time.Parse(time.RFC3339, vars["start_time"])
	if err != nil {
		handleError(fmt.Errorf("malformed start_time %q: %w", vars["start_time"], err), http.StatusBadRequest, rw)
		return
	}

	size, err := strconv.Atoi(vars["size"])
	if err != nil || size <= 0 {
		handleError(fmt.Errorf("malformed size %q", vars["size"]), http.StatusBadRequest, rw)
		return
	}

	rows, err := api.Store.GetHistory(r.Context(), startTime, size)
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}

	out := make([]valueEntry, len(rows))
	for i, row := range rows {
		out[i] = historyValue(row)
	}
	writeJSON(rw, out)
}
