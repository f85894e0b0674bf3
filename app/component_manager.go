package app

import (
	"fmt"
	"sync/atomic"

	"github.com/mwcnet/mwcd/app/apiserver"
	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/verifiercache"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/mwcnet/mwcd/infrastructure/config"
	"github.com/mwcnet/mwcd/infrastructure/db/database"
	"github.com/mwcnet/mwcd/util/panics"
)

// ComponentManager is a wrapper for all the mwcd services
type ComponentManager struct {
	cfg         *config.Config
	chain       *chain.Chain
	blockIntake *BlockIntake
	apiServer   *apiserver.Server

	started, shutdown int32
}

// Start launches all the mwcd services.
func (a *ComponentManager) Start() {
	// Already started?
	if atomic.AddInt32(&a.started, 1) != 1 {
		return
	}

	log.Trace("Starting mwcd")

	a.blockIntake.Start()

	err := a.apiServer.Start()
	if err != nil {
		panics.Exit(log, fmt.Sprintf("Error starting the API server: %+v", err))
	}
}

// Stop gracefully shuts down all the mwcd services.
func (a *ComponentManager) Stop() {
	// Make sure this only happens once.
	if atomic.AddInt32(&a.shutdown, 1) != 1 {
		log.Infof("Mwcd is already in the process of shutting down")
		return
	}

	log.Warnf("Mwcd shutting down")

	err := a.apiServer.Stop()
	if err != nil {
		log.Errorf("Error stopping the API server: %+v", err)
	}

	a.blockIntake.Stop()

	err = a.chain.Close()
	if err != nil {
		log.Errorf("Error closing the chain: %+v", err)
	}
}

// NewComponentManager returns a new ComponentManager instance.
// Use Start() to begin all services within this ComponentManager
func NewComponentManager(cfg *config.Config, db database.Database, running *global.RunningFlag) (
	*ComponentManager, error) {

	verifierCache, err := verifiercache.New(cfg.VerifierCacheSize)
	if err != nil {
		return nil, err
	}
	c, err := chain.New(&chain.Config{
		DataDir:         cfg.TxHashSetDir(),
		Database:        db,
		Params:          cfg.NetParams(),
		Running:         running,
		VerifierCache:   verifierCache,
		NRDEnabled:      &cfg.EnableNRD,
		ArchiveMode:     cfg.ArchiveMode,
		MaxOrphans:      cfg.MaxOrphans,
		FutureTimeLimit: cfg.FutureTimeLimit,
	})
	if err != nil {
		return nil, err
	}

	blockIntake := NewBlockIntake(c)
	apiServer := apiserver.New(&apiserver.Config{
		Listen:      cfg.APIListen,
		DisableCORS: cfg.DisableCORS,
	}, c, blockIntake)

	return &ComponentManager{
		cfg:         cfg,
		chain:       c,
		blockIntake: blockIntake,
		apiServer:   apiServer,
	}, nil
}

// Chain returns the chain managed by this ComponentManager
func (a *ComponentManager) Chain() *chain.Chain {
	return a.chain
}

// APIServer returns the API server managed by this ComponentManager
func (a *ComponentManager) APIServer() *apiserver.Server {
	return a.apiServer
}
