package app

import (
	"fmt"
	"os"
	"time"

	"github.com/mwcnet/mwcd/domain/global"
	"github.com/mwcnet/mwcd/infrastructure/config"
	"github.com/mwcnet/mwcd/infrastructure/db/database/ldb"
	"github.com/mwcnet/mwcd/infrastructure/logger"
	"github.com/mwcnet/mwcd/infrastructure/os/signal"
	"github.com/mwcnet/mwcd/util/panics"
	"github.com/mwcnet/mwcd/version"
)

// StartApp starts the mwcd app, and blocks until it finishes running
func StartApp() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	err = logger.InitLog(cfg.LogFile(), cfg.ErrLogFile())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, "MAIN", nil)

	return runApp(cfg)
}

func runApp(cfg *config.Config) error {
	global.InitNRDEnabled(cfg.EnableNRD)

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the API server.
	interrupt := signal.InterruptListener(global.Running)
	defer log.Info("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())
	log.Infof("Network %s, data directory %s", cfg.NetParams().ChainType, cfg.DataDir)

	// Return now if an interrupt signal was triggered.
	if signal.InterruptRequested(interrupt) {
		return nil
	}

	err := checkDatabaseVersion(cfg.DataDir)
	if err != nil {
		log.Errorf("%+v", err)
		return err
	}
	db, err := ldb.NewLevelDB(cfg.DatabaseDir(), cfg.DBCacheSizeMiB)
	if err != nil {
		log.Errorf("Failed to open the database: %+v", err)
		return err
	}

	componentManager, err := NewComponentManager(cfg, db, global.Running)
	if err != nil {
		log.Errorf("Unable to start mwcd: %+v", err)
		closeErr := db.Close()
		if closeErr != nil {
			log.Errorf("Failed to close the database: %+v", closeErr)
		}
		return err
	}

	defer func() {
		log.Infof("Gracefully shutting down mwcd...")

		shutdownDone := make(chan struct{})
		go func() {
			componentManager.Stop()
			shutdownDone <- struct{}{}
		}()

		const shutdownTimeout = 2 * time.Minute

		select {
		case <-shutdownDone:
		case <-time.After(shutdownTimeout):
			log.Criticalf("Graceful shutdown timed out %s. Terminating...", shutdownTimeout)
		}
	}()

	componentManager.Start()

	<-interrupt
	return nil
}
