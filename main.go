// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"

	"github.com/umbranet/umbrad/config"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/logger"
	"github.com/umbranet/umbrad/signal"
	"github.com/umbranet/umbrad/util/panics"
	"github.com/umbranet/umbrad/util/profiling"
	"github.com/umbranet/umbrad/version"
)

// dbDirname is the name of the directory holding the database within the
// data directory.
const dbDirname = "db"

var cfg *config.Config

// umbradMain is the real main function for umbrad. It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func umbradMain() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	err := config.LoadAndSetActiveConfig()
	if err != nil {
		return err
	}
	cfg = config.ActiveConfig()
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, nil)

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := signal.InterruptListener()
	defer log.Info("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		profiling.Start(cfg.Profile, log)
	}

	// Open the database
	databaseContext, err := openDB(cfg)
	if err != nil {
		log.Errorf("Loading database failed: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the database...")
		err := databaseContext.Close()
		if err != nil {
			log.Errorf("Failed to close the database: %+v", err)
		}
	}()

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	// Create umbrad and start it. Creating umbrad may take a long while
	// on the first run because the proof system parameters have to be
	// generated, so check for an interrupt again before starting.
	umbrad, err := newUmbrad(databaseContext)
	if err != nil {
		log.Errorf("Unable to start umbrad: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down umbrad...")
		umbrad.stop()
	}()
	if signal.InterruptRequested(interrupt) {
		return nil
	}
	umbrad.start()

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

func openDB(cfg *config.Config) (*dbaccess.DatabaseContext, error) {
	dbPath := filepath.Join(cfg.DataDir, dbDirname)
	log.Infof("Loading database from '%s'", dbPath)
	return dbaccess.New(dbPath)
}

func main() {
	if err := umbradMain(); err != nil {
		os.Exit(1)
	}
}
