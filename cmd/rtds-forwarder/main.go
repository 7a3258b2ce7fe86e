// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rtds-forwarder is the §5 deployable that drains the primary
// store's history table onto the bus (§4.8), separate from the
// scan-loop engine process so it can be scaled or restarted on its own.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/plantdata/rtds/internal/config"
	"github.com/plantdata/rtds/internal/forwarder"
	"github.com/plantdata/rtds/internal/metrics"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
	natsclient "github.com/plantdata/rtds/pkg/nats"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	var flagLogLevel, flagMetricsAddr string
	var flagLogDate bool
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.BoolVar(&flagLogDate, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagMetricsAddr, "metrics-addr", ":9091", "Address the /metrics endpoint listens on")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDate)

	settings := config.LoadSettings()

	driver, dsn, err := settings.StoreDriverDSN()
	if err != nil {
		log.Fatal(err)
	}

	conn, err := store.Connect(driver, dsn)
	if err != nil {
		log.Fatalf("store: connect: %s", err.Error())
	}
	defer conn.Close()

	sink := metrics.NewSink()
	st := store.New(conn, driver, settings.StoreHistoryHours, nil, metrics.StoreMetrics{Sink: sink})

	bus, err := natsclient.NewClient(natsclient.NatsConfig{Address: settings.KafkaBootstrapServer})
	if err != nil {
		log.Fatalf("nats: connect: %s", err.Error())
	}
	defer bus.Close()

	fw := forwarder.New(st, bus, settings.KafkaTopic, settings.KafkaBatchSize, sink)

	ctx, cancel := context.WithCancel(context.Background())

	metricsServer := &http.Server{Addr: flagMetricsAddr, Handler: promhttp.Handler()}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()

	wg.Add(1)
	runErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		runErr <- fw.Run(ctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-runErr:
		if err != nil {
			log.Errorf("forwarder exited: %s", err.Error())
		}
	}

	cancel()
	metricsServer.Shutdown(context.Background())
	wg.Wait()
	log.Info("forwarder shutdown complete")
}
