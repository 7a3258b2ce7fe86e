// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api implements the HTTP adapter (§6, §4.11): thin handlers
// translating REST calls into internal/store and internal/config calls.
// Grounded on internal/repository's DB-backed query style and on
// a gorilla/mux + gorilla/handlers wiring style,
// reinterpreting the source's ODS-upload config endpoint as JSON since
// the spreadsheet loader is out of scope (§1's Non-goals).
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
)

// Reloader is the narrow seam the API needs from the scan-loop engine;
// satisfied by *internal/scanloop.Engine without api importing it back.
type Reloader interface {
	TriggerReload()
}

// RestApi owns the store handle and the reload trigger. It has no
// config-loader dependency of its own: GetConfig/SetConfig already
// round-trip through store.Store.
type RestApi struct {
	Store    *store.Store
	Reloader Reloader
}

// New builds a RestApi.
func New(st *store.Store, reloader Reloader) *RestApi {
	return &RestApi{Store: st, Reloader: reloader}
}

// MountRoutes registers every handler from §6's interface table under
// r's existing prefix (the caller decides whether that is "/" or
// "/api" already; here routes are registered with their full literal
// path since the table mixes /api/... and bare /spec).
func (api *RestApi) MountRoutes(r *mux.Router) {
	r.HandleFunc("/api/config", api.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/config", api.postConfig).Methods(http.MethodPost)
	r.HandleFunc("/api/reload", api.postReload).Methods(http.MethodPost)
	r.HandleFunc("/api/status", api.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/state", api.getState).Methods(http.MethodGet)
	r.HandleFunc("/api/current", api.getCurrent).Methods(http.MethodGet)
	r.HandleFunc("/api/history/{start_time}/{size}", api.getHistory).Methods(http.MethodGet)
}

// errorResponse is the JSON error shape spec.md §7 mandates:
// {"error": msg} with a 4xx/5xx status.
type errorResponse struct {
	Error string `json:"error"`
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	log.Warnf("api: %s", err.Error())
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Errorf("api: encode response: %v", err)
	}
}

func decode(r io.Reader, val interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}
