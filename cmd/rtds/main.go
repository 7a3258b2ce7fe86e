// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/plantdata/rtds/internal/api"
	"github.com/plantdata/rtds/internal/archivebackend"
	"github.com/plantdata/rtds/internal/config"
	"github.com/plantdata/rtds/internal/metrics"
	"github.com/plantdata/rtds/internal/scanloop"
	"github.com/plantdata/rtds/internal/scheduler"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
	"github.com/plantdata/rtds/pkg/runtimeEnv"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/plantdata/rtds/internal/connector/modbus"
	_ "github.com/plantdata/rtds/internal/connector/natsingest"
	_ "github.com/plantdata/rtds/internal/connector/simulator"
)

// ProgramConfig is the process-level configuration read from
// ./rtds.json when that file exists, distinct from the reloadable connector/
// tag/script Config the scan loop owns (§6: "Settings ... read once at
// process startup" vs. "Config ... reloadable"). Grounded on
// a similar main-process ProgramConfig shape, trimmed to what a
// single-process scan-loop engine needs: an HTTP bind address, the
// user/group to drop to, and the daily retention run's hour/minute;
// nothing auth- or archive-related.
type ProgramConfig struct {
	Addr  string `json:"addr"`
	User  string `json:"user"`
	Group string `json:"group"`

	RetentionHour   uint `json:"retention-hour"`
	RetentionMinute uint `json:"retention-minute"`
}

var programConfig = ProgramConfig{
	Addr:            ":8080",
	RetentionHour:   3,
	RetentionMinute: 0,
}

var (
	version string
	commit  string
	date    string
)

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("rtds version %s, commit %s, built on %s\n", version, commit, date)
		return
	}

	if flagInit {
		initScaffold()
		return
	}

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if f, err := os.Open("./rtds.json"); err == nil {
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&programConfig); err != nil {
			f.Close()
			log.Fatal(err)
		}
		f.Close()
	}

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

	archive, err := buildArchiveBackend(context.Background(), settings)
	if err != nil {
		log.Fatalf("archive backend: %s", err.Error())
	}

	st := store.New(conn, driver, settings.StoreHistoryHours, archive, metrics.StoreMetrics{Sink: sink})

	if flagApplyConfig {
		if _, err := config.NewJSONLoader(flagConfigFile).Load(context.Background()); err != nil {
			log.Fatalf("config: %s", err.Error())
		}
		log.Infof("%s validates OK", flagConfigFile)
		return
	}

	if flagSeedConfig {
		if err := config.SeedFromJSON(context.Background(), flagConfigFile, st); err != nil {
			log.Fatalf("config: seed from %s: %s", flagConfigFile, err.Error())
		}
		log.Infof("seeded store config from %s", flagConfigFile)
	}

	// The scan loop and POST/GET /api/config both read and write the same
	// store-backed config (§4.5, §6): a POST /api/config followed by a
	// POST /api/reload now actually changes what the engine runs.
	loader := config.NewStoreLoader(st)

	engine := scanloop.New(loader, st, sink)
	restApi := api.New(st, engine)
	serverInit(restApi)

	if err := scheduler.Start(st, programConfig.RetentionHour, programConfig.RetentionMinute); err != nil {
		log.Fatalf("scheduler: %s", err.Error())
	}

	ctx, cancelEngine := context.WithCancel(context.Background())
	metricsCtx, cancelMetrics := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Run(metricsCtx)
	}()

	wg.Add(1)
	engineErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		engineErr <- engine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		serverStart(programConfig.Addr, programConfig.User, programConfig.Group)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runtimeEnv.SystemdNotifiy(true, "running")

	select {
	case sig := <-sigs:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-engineErr:
		if err != nil {
			log.Errorf("scan loop exited: %s", err.Error())
		}
	}

	runtimeEnv.SystemdNotifiy(false, "shutting down")

	serverShutdown()
	cancelEngine()
	if err := scheduler.Shutdown(); err != nil {
		log.Errorf("scheduler: shutdown: %s", err.Error())
	}
	cancelMetrics()
	wg.Wait()

	log.Info("graceful shutdown complete")
}

// buildArchiveBackend selects the retention archive target from settings
// (§4.7 Open Question resolution): STORE_ARCHIVE_DIR for a local
// directory, STORE_ARCHIVE_S3_BUCKET for an S3-compatible bucket, or a
// nil backend (archive skipped, retention just deletes) when neither is
// set. STORE_ARCHIVE_DIR wins if both are configured.
func buildArchiveBackend(ctx context.Context, settings config.Settings) (store.ArchiveBackend, error) {
	switch {
	case settings.StoreArchiveDir != "":
		return archivebackend.NewFileBackend(settings.StoreArchiveDir)
	case settings.StoreArchiveS3Bucket != "":
		return archivebackend.NewS3Backend(ctx, archivebackend.S3Config{
			Endpoint:     settings.StoreArchiveS3Endpoint,
			Bucket:       settings.StoreArchiveS3Bucket,
			Prefix:       settings.StoreArchiveS3Prefix,
			AccessKey:    settings.StoreArchiveS3AccessKey,
			SecretKey:    settings.StoreArchiveS3SecretKey,
			Region:       settings.StoreArchiveS3Region,
			UsePathStyle: settings.StoreArchiveS3PathStyle,
		})
	default:
		return nil, nil
	}
}
