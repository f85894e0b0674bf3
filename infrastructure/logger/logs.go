package logger

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

var (
	subsystemLoggers     = make(map[string]*Logger)
	subsystemLoggersLock sync.Mutex
)

// RegisterSubSystem registers a new subsystem logger, should be called in a
// global variable, returns the existing one if the subsystem is already
// registered
func RegisterSubSystem(subsystem string) *Logger {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()
	logger, exists := subsystemLoggers[subsystem]
	if !exists {
		logger = BackendLog.Logger(subsystem)
		subsystemLoggers[subsystem] = logger
	}
	return logger
}

type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdoutWriter) Close() error {
	return nil
}

// InitLog attaches log file and error log file to the backend log, mirrors
// the log to stdout, and starts the backend.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", logFile, LevelTrace)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", errLogFile, LevelWarn)
	}
	err = BackendLog.AddLogWriter(stdoutWriter{}, LevelInfo)
	if err != nil {
		return err
	}
	return BackendLog.Run()
}

// SetLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored. Uninitialized subsystems are dynamically created
// as needed.
func SetLogLevel(subsystemID string, logLevel string) {
	subsystemLoggersLock.Lock()
	logger, ok := subsystemLoggers[subsystemID]
	subsystemLoggersLock.Unlock()
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level. It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func SetLogLevels(logLevel string) {
	for _, subsystemID := range SupportedSubsystems() {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func SupportedSubsystems() []string {
	subsystemLoggersLock.Lock()
	defer subsystemLoggersLock.Unlock()
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetLogLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid. The level is either a single level for all subsystems, or a
// comma separated list of subsystem=level pairs.
func ParseAndSetLogLevels(logLevel string) error {
	if !strings.Contains(logLevel, ",") && !strings.Contains(logLevel, "=") {
		if _, ok := LevelFromString(logLevel); !ok {
			return errors.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevels(logLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(logLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return errors.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]",
				logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		subsystemLoggersLock.Lock()
		_, exists := subsystemLoggers[subsysID]
		subsystemLoggersLock.Unlock()
		if !exists {
			return errors.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if _, ok := LevelFromString(logLevel); !ok {
			return errors.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}
