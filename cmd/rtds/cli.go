// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagInit, flagGops, flagVersion, flagLogDateTime, flagApplyConfig, flagSeedConfig bool
	flagConfigFile, flagLogLevel                                                      string
)

// cliInit lays out flags similarly to a typical daemon CLI, trimmed to what
// the scan-loop engine actually needs: no LDAP/JWT/user-management
// flags, since RTDS has no auth subsystem (§1 Non-goals).
func cliInit() {
	flag.BoolVar(&flagInit, "init", false, "Write a default ./config.json and ./.env and exit")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.BoolVar(&flagApplyConfig, "apply-config", false, "Load -config once, validate it, and exit without starting the server")
	flag.BoolVar(&flagSeedConfig, "seed-config", false, "Import -config into the store-backed config tables once at startup, then continue (equivalent to a one-time POST /api/config)")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json` (the connectors/tags/scripts document)")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Parse()
}
