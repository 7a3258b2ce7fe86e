// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"os"

	"github.com/plantdata/rtds/pkg/log"
)

const defaultConfigString = `{
    "connectors": [
        {
            "name": "sim0",
            "cycle": 1,
            "connection_string": "connector=simulator",
            "is_read_only": true,
            "description": "built-in synthetic test source"
        }
    ],
    "tags": [
        {
            "name": "demo.temperature",
            "type": "float",
            "source": "func=sin;period=300;scale=20",
            "min": -20,
            "max": 60,
            "is_log": true,
            "connector_name": "sim0",
            "description": "synthetic temperature reading"
        }
    ],
    "scripts": []
}
`

const defaultEnvString = `STORE_DB_URL=sqlite:///data/rtds.db
STORE_BATCH_SIZE=100
STORE_HISTORY_HOURS=24
KAFKA_BOOTSTRAP_SERVERS=nats://127.0.0.1:4222
KAFKA_TOPIC=rtds.history
KAFKA_GROUP_ID=rtds-consumer
LOG_LEVEL=info
`

// initScaffold writes a starter config.json and .env, grounded on
// a similar -init flag, trimmed to RTDS's config shape
// (connectors/tags/scripts instead of a cluster/archive document) and
// with no var/ directory or database file to pre-seed: store.Connect
// runs migrations on first use instead.
func initScaffold() {
	if _, err := os.Stat("config.json"); err == nil {
		log.Fatal("./config.json already exists, refusing to overwrite")
	}

	if err := os.WriteFile("config.json", []byte(defaultConfigString), 0o644); err != nil {
		log.Fatalf("could not write default ./config.json: %s", err.Error())
	}

	if err := os.WriteFile(".env", []byte(defaultEnvString), 0o644); err != nil {
		log.Fatalf("could not write default ./.env: %s", err.Error())
	}

	log.Info("wrote ./config.json and ./.env, edit them and run again without -init")
}
