// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package api

import (
	"embed"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openapiDoc embed.FS

// MountDocs serves the hand-authored OpenAPI document at /spec and
// mounts swaggo/http-swagger against it at /api/docs, matching
// a httpSwagger.Handler mounting style (that
// server also only mounts a pre-built doc; it never generates one at
// runtime).
func (api *RestApi) MountDocs(r *mux.Router) {
	r.HandleFunc("/spec", func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		data, err := openapiDoc.ReadFile("openapi.json")
		if err != nil {
			handleError(err, http.StatusInternalServerError, rw)
			return
		}
		rw.Write(data)
	}).Methods(http.MethodGet)

	r.PathPrefix("/api/docs").Handler(httpSwagger.Handler(httpSwagger.URL("/spec"))).Methods(http.MethodGet)
}
