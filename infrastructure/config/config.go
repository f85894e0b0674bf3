package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jessevdk/go-flags"
	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/consensus/verifiercache"
	"github.com/mwcnet/mwcd/infrastructure/logger"
	"github.com/mwcnet/mwcd/version"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename = "mwcd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "mwcd.log"
	defaultErrLogFilename = "mwcd_err.log"
	defaultAPIListen      = "127.0.0.1:3413"
	defaultDBCacheSizeMiB = 64
)

var (
	// DefaultAppDir is the default home directory for mwcd.
	DefaultAppDir = appDir()

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultAppDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Flags defines the configuration options for mwcd.
//
// See LoadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion       bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir           string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string `long:"logdir" description:"Directory to log output."`
	DebugLevel        string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	APIListen         string `long:"apilisten" description:"Interface/port the HTTP API listens on" validate:"hostname_port"`
	DisableCORS       bool   `long:"nocors" description:"Don't send CORS headers from the HTTP API"`
	ArchiveMode       bool   `long:"archive" description:"Keep every block body instead of deleting those below the cut-through horizon"`
	EnableNRD         bool   `long:"enable-nrd" description:"Accept no-recent-duplicate kernels"`
	VerifierCacheSize int    `long:"verifiercachesize" description:"Number of verified rangeproofs and kernel signatures to remember" validate:"min=1,max=10000000"`
	MaxOrphans        int    `long:"maxorphans" description:"Max number of orphan blocks to keep in memory" validate:"min=1,max=100000"`
	FutureTimeLimit   int64  `long:"futuretimelimit" description:"How many seconds ahead of the local clock a block timestamp may be" validate:"min=1,max=86400"`
	DBCacheSizeMiB    int    `long:"dbcachesize" description:"Size of the database cache, in MiB" validate:"min=1,max=65536"`
	NetworkFlags
}

// Config defines the configuration options for mwcd.
//
// See LoadConfig for details on the configuration load process.
type Config struct {
	*Flags
}

// DefaultConfig returns the configuration mwcd runs with when no option is
// given.
func DefaultConfig() *Config {
	return &Config{
		Flags: &Flags{
			ConfigFile:        defaultConfigFile,
			DataDir:           defaultDataDir,
			LogDir:            defaultLogDir,
			DebugLevel:        defaultLogLevel,
			APIListen:         defaultAPIListen,
			VerifierCacheSize: verifiercache.DefaultSize,
			MaxOrphans:        chain.DefaultMaxOrphans,
			FutureTimeLimit:   chainconfig.DefaultFutureTimeLimit,
			DBCacheSizeMiB:    defaultDBCacheSizeMiB,
		},
	}
}

// LogFile returns the path of the main log file.
func (cfg *Config) LogFile() string {
	return filepath.Join(cfg.LogDir, defaultLogFilename)
}

// ErrLogFile returns the path of the log file receiving warnings and
// errors only.
func (cfg *Config) ErrLogFile() string {
	return filepath.Join(cfg.LogDir, defaultErrLogFilename)
}

// DatabaseDir returns the directory of the chain database.
func (cfg *Config) DatabaseDir() string {
	return filepath.Join(cfg.DataDir, "chain_db")
}

// TxHashSetDir returns the directory of the txhashset files.
func (cfg *Config) TxHashSetDir() string {
	return filepath.Join(cfg.DataDir, "txhashset")
}

// LoadConfig builds the configuration from the defaults, then the config
// file, then the command line, each overriding the previous one. The
// config file is the one given with --configfile, if any.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()

	// Only --configfile, --version and --help matter on this pass. Other
	// errors show up again on the final parse.
	preCfg := *cfg.Flags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// A missing config file is fine.
	parser := flags.NewParser(cfg.Flags, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// The command line wins over the file.
	_, err = parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	err = cfg.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	err = validator.New().Struct(cfg.Flags)
	if err != nil {
		err := errors.Wrap(err, "invalid configuration")
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Namespace the data and log directories per network.
	networkName := cfg.NetParams().ChainType.String()
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), networkName)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), networkName)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	err = logger.ParseAndSetLogLevels(cfg.DebugLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	return cfg, nil
}

// cleanAndExpandPath replaces a leading ~ with the home directory and
// expands $VARIABLES in path.
func cleanAndExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}
	return filepath.Clean(path)
}

func appDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".mwcd"
	}
	return filepath.Join(homeDir, ".mwcd")
}
