// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/plantdata/rtds/internal/api"
	"github.com/plantdata/rtds/pkg/log"
	"github.com/plantdata/rtds/pkg/runtimeEnv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	router    *mux.Router
	server    *http.Server
	apiHandle *api.RestApi
)

// serverInit builds the router: §6's REST surface, the OpenAPI/swagger
// doc, and a Prometheus exposition endpoint for §4.10's metrics.
// Built on mux.NewRouter + gorilla/handlers
// middleware stack, trimmed of the GraphQL/auth/static-asset routes that
// document doesn't apply here.
func serverInit(restApi *api.RestApi) {
	apiHandle = restApi
	router = mux.NewRouter()

	apiHandle.MountRoutes(router)
	apiHandle.MountDocs(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	router.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", "Origin"}),
		handlers.AllowedMethods([]string{"GET", "POST", "HEAD", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))
}

func serverStart(addr, user, group string) {
	handler := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		if strings.HasPrefix(params.Request.RequestURI, "/api/") {
			log.Infof("%s %s (%d, %.02fkb, %dms)",
				params.Request.Method, params.URL.RequestURI(),
				params.StatusCode, float32(params.Size)/1024,
				time.Since(params.TimeStamp).Milliseconds())
		} else {
			log.Debugf("%s %s (%d, %.02fkb, %dms)",
				params.Request.Method, params.URL.RequestURI(),
				params.StatusCode, float32(params.Size)/1024,
				time.Since(params.TimeStamp).Milliseconds())
		}
	})

	server = &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      handler,
		Addr:         addr,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("starting http listener failed: %v", err)
	}

	// Because this program may want to bind to a privileged port, the
	// listener must be established first, then the user changed, and only
	// then the server actually started.
	if err := runtimeEnv.DropPrivileges(user, group); err != nil {
		log.Fatalf("error while dropping privileges: %s", err.Error())
	}

	log.Infof("HTTP server listening at %s...", addr)
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Fatalf("starting server failed: %v", err)
	}
}

func serverShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
