package chain

import (
	"sync"
	"time"

	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/txhashset"
	"github.com/mwcnet/mwcd/domain/consensus/verifiercache"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/mwcnet/mwcd/infrastructure/db/database"
	"github.com/mwcnet/mwcd/util/prioritylock"
	"github.com/mwcnet/mwcd/util/timesource"
	"github.com/pkg/errors"
)

// Config is a descriptor which specifies the chain instance configuration.
type Config struct {
	// DataDir is the directory the txhashset files are kept in.
	//
	// This field is required.
	DataDir string

	// Database holds the headers, blocks and indexes of the chain.
	//
	// This field is required.
	Database database.Database

	// Params identifies the network the chain belongs to.
	//
	// This field is required.
	Params *chainconfig.Params

	// Running is checked by long running operations, which return a
	// KindStopped error once it's cleared. Defaults to global.Running.
	Running *global.RunningFlag

	// VerifierCache remembers verified rangeproofs and kernel signatures.
	// A cache of verifiercache.DefaultSize is created when nil.
	VerifierCache verifiercache.VerifierCache

	// NRDEnabled allows NRD kernels once the network's activation height
	// is reached. Defaults to global.IsNRDEnabled() when nil.
	NRDEnabled *bool

	// ArchiveMode keeps every block body when compacting.
	ArchiveMode bool

	// MaxOrphans bounds the orphan pool. Defaults to DefaultMaxOrphans.
	MaxOrphans int

	// HeaderCacheSize is the number of headers the store keeps in memory.
	// Defaults to chainstore.DefaultHeaderCacheSize.
	HeaderCacheSize int

	// TimeSource returns the current time. Defaults to timesource.Now.
	TimeSource func() time.Time

	// FutureTimeLimit is how many seconds ahead of TimeSource a block
	// timestamp may be. Defaults to chainconfig.DefaultFutureTimeLimit.
	FutureTimeLimit int64
}

// Chain accepts blocks one at a time, keeping the txhashset at the head of
// the chain with the most work.
//
// Every operation that moves the txhashset holds txHashSetLock for writing,
// and every read of the txhashset holds it for reading.
type Chain struct {
	params      *chainconfig.Params
	store       *chainstore.ChainStore
	txHashSet   *txhashset.TxHashSet
	running     *global.RunningFlag
	archiveMode bool
	timeSource  func() time.Time

	futureTimeLimit int64

	txHashSetLock *prioritylock.Mutex

	verifierCacheLock sync.Mutex
	verifierCache     verifiercache.VerifierCache

	orphans *orphanPool
}

// New returns a chain over the given database and data directory, storing
// the genesis block first if the database is empty.
func New(config *Config) (*Chain, error) {
	if config.Params == nil {
		return nil, errors.New("chain.New: params are required")
	}
	if config.Database == nil {
		return nil, errors.New("chain.New: a database is required")
	}

	running := config.Running
	if running == nil {
		running = global.Running
	}
	cache := config.VerifierCache
	if cache == nil {
		lruCache, err := verifiercache.New(verifiercache.DefaultSize)
		if err != nil {
			return nil, err
		}
		cache = lruCache
	}
	nrdEnabled := global.IsNRDEnabled()
	if config.NRDEnabled != nil {
		nrdEnabled = *config.NRDEnabled
	}
	maxOrphans := config.MaxOrphans
	if maxOrphans <= 0 {
		maxOrphans = DefaultMaxOrphans
	}
	headerCacheSize := config.HeaderCacheSize
	if headerCacheSize <= 0 {
		headerCacheSize = chainstore.DefaultHeaderCacheSize
	}
	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = timesource.Now
	}
	futureTimeLimit := config.FutureTimeLimit
	if futureTimeLimit <= 0 {
		futureTimeLimit = chainconfig.DefaultFutureTimeLimit
	}

	store, err := chainstore.New(config.Database, headerCacheSize)
	if err != nil {
		return nil, err
	}
	txHashSet, err := txhashset.Open(config.DataDir, config.Params, running, nrdEnabled)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		params:          config.Params,
		store:           store,
		txHashSet:       txHashSet,
		running:         running,
		archiveMode:     config.ArchiveMode,
		timeSource:      timeSource,
		futureTimeLimit: futureTimeLimit,
		txHashSetLock:   prioritylock.New(),
		verifierCache:   cache,
		orphans:         newOrphanPool(maxOrphans, timeSource),
	}
	err = c.initChainState()
	if err != nil {
		txHashSet.Close()
		return nil, err
	}
	return c, nil
}

// initChainState stores the genesis block on first start, and otherwise
// checks the stored chain belongs to the configured network and the
// txhashset files match the stored head.
func (c *Chain) initChainState() error {
	genesis := c.params.GenesisBlock
	genesisHash := genesis.Hash()

	head, err := c.store.Head()
	if chainstore.IsNotFoundError(err) {
		return c.storeGenesis(genesis)
	}
	if err != nil {
		return err
	}

	storedGenesisHash, err := c.store.GetHeaderHashByHeight(0)
	if err != nil {
		return err
	}
	if !storedGenesisHash.Equal(genesisHash) {
		return errors.Errorf("the database holds a chain with genesis %s, expected %s for %s",
			storedGenesisHash, genesisHash, c.params.ChainType)
	}

	headHeader, err := c.store.GetBlockHeader(&head.LastBlockHash)
	if err != nil {
		return err
	}
	err = c.txHashSet.ValidateAgainst(headHeader)
	if err != nil {
		return ruleerrors.Wrapf(ruleerrors.KindTxHashSetErr, err,
			"the txhashset doesn't match the head %s at height %d", head.LastBlockHash, head.Height)
	}
	log.Infof("Loaded chain state: head %s at height %d, total difficulty %d",
		head.LastBlockHash, head.Height, head.TotalDifficulty)
	return nil
}

func (c *Chain) storeGenesis(genesis *model.Block) error {
	batch, err := c.store.Batch()
	if err != nil {
		return err
	}
	defer batch.Rollback()

	err = batch.SaveBlockHeader(genesis.Header)
	if err != nil {
		return err
	}
	err = batch.SaveBlock(genesis)
	if err != nil {
		return err
	}
	err = c.txHashSet.HeaderExtending(batch, func(extension *txhashset.HeaderExtension) error {
		return extension.MoveTo(genesis.Header)
	})
	if err != nil {
		return err
	}
	err = c.txHashSet.Extending(batch, func(extension *txhashset.Extension) error {
		return extension.ApplyBlock(genesis)
	})
	if err != nil {
		return err
	}

	tip := model.NewTip(genesis.Header)
	err = batch.SaveHeaderHashByHeight(0, genesis.Hash())
	if err != nil {
		return err
	}
	for _, save := range []func(*model.Tip) error{batch.SaveHead, batch.SaveHeaderHead, batch.SaveTail} {
		err = save(tip)
		if err != nil {
			return err
		}
	}
	err = batch.Commit()
	if err != nil {
		return err
	}
	log.Infof("Stored the %s genesis block %s", c.params.ChainType, genesis.Hash())
	return nil
}

// Params returns the consensus parameters of the chain.
func (c *Chain) Params() *chainconfig.Params {
	return c.params
}

// Close closes the txhashset files and the store.
func (c *Chain) Close() error {
	c.txHashSetLock.HighPriorityLock()
	defer c.txHashSetLock.HighPriorityUnlock()

	err := c.txHashSet.Close()
	if err != nil {
		return err
	}
	return c.store.Close()
}
