package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

// Flags to modify Backend's behavior.
const (
	// LogFlagLongFile adds the full path and line number of the logging
	// callsite to every entry, e.g. /a/b/c/main.go:123.
	LogFlagLongFile uint32 = 1 << iota

	// LogFlagShortFile adds the file name and line number of the logging
	// callsite to every entry, e.g. main.go:123. It takes precedence over
	// LogFlagLongFile.
	LogFlagShortFile
)

// defaultFlags are read from the comma separated LOGFLAGS environment
// variable. It's a variable rather than set by init since BackendLog is
// built from it during variable initialization.
var defaultFlags = flagsFromEnv(os.Getenv("LOGFLAGS"))

func flagsFromEnv(value string) uint32 {
	var flags uint32
	for _, flag := range strings.Split(value, ",") {
		switch strings.TrimSpace(flag) {
		case "longfile":
			flags |= LogFlagLongFile
		case "shortfile":
			flags |= LogFlagShortFile
		}
	}
	return flags
}

// writeQueueSize is the number of entries that may wait for the writers.
// Block processing logs in bursts, which shouldn't wait on the disk.
const writeQueueSize = 256

// FileRotation is how a log file is rotated.
type FileRotation struct {
	// ThresholdKB is the size a file grows to before it's rolled.
	ThresholdKB int64

	// MaxRolls is the number of rolled files that are kept.
	MaxRolls int
}

// DefaultFileRotation rolls log files every 100 MB and keeps the last 8.
var DefaultFileRotation = FileRotation{ThresholdKB: 100 * 1000, MaxRolls: 8}

type levelWriter struct {
	io.WriteCloser
	level Level
}

// Backend is a logging backend. Loggers created from the backend send their
// entries to a single goroutine, which writes each entry to every writer
// whose level it reaches.
type Backend struct {
	flag      uint32
	isRunning uint32
	writers   []levelWriter
	writeChan chan logEntry

	// done is held by the writing goroutine until the queue is drained.
	done sync.Mutex
}

// NewBackendWithFlags returns a backend using flags instead of the ones
// given through LOGFLAGS.
func NewBackendWithFlags(flags uint32) *Backend {
	return &Backend{flag: flags, writeChan: make(chan logEntry, writeQueueSize)}
}

// NewBackend returns a backend using the flags given through LOGFLAGS.
func NewBackend() *Backend {
	return NewBackendWithFlags(defaultFlags)
}

// AddLogFile adds a file written with the entries of logLevel and above,
// rotated with DefaultFileRotation. The file and its directory are created
// as needed.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	return b.AddRotatedLogFile(logFile, logLevel, DefaultFileRotation)
}

// AddRotatedLogFile is AddLogFile with custom rotation settings.
func (b *Backend) AddRotatedLogFile(logFile string, logLevel Level, rotation FileRotation) error {
	if b.IsRunning() {
		return errors.New("writers can't be added to a running logger")
	}
	logDir := filepath.Dir(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return errors.Wrapf(err, "failed to create log directory %s", logDir)
	}
	fileRotator, err := rotator.New(logFile, rotation.ThresholdKB, false, rotation.MaxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create a rotator for %s", logFile)
	}
	b.writers = append(b.writers, levelWriter{WriteCloser: fileRotator, level: logLevel})
	return nil
}

// AddLogWriter adds a writer written with the entries of logLevel and
// above.
func (b *Backend) AddLogWriter(writer io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("writers can't be added to a running logger")
	}
	b.writers = append(b.writers, levelWriter{WriteCloser: writer, level: logLevel})
	return nil
}

// Run starts writing entries in a separate goroutine. Entries logged before
// Run are dropped. It may only be called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger is already running")
	}
	b.done.Lock()
	go func() {
		defer func() {
			err := recover()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Fatal error in the logger backend: %+v\n%s\n", err, debug.Stack())
			}
		}()
		b.write()
	}()
	return nil
}

func (b *Backend) write() {
	defer b.done.Unlock()
	defer atomic.StoreUint32(&b.isRunning, 0)

	for entry := range b.writeChan {
		for _, writer := range b.writers {
			if entry.level >= writer.level {
				_, _ = writer.Write(entry.log)
			}
		}
	}
}

// IsRunning returns whether Run was called and Close wasn't.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close writes the queued entries and closes the writers.
func (b *Backend) Close() {
	close(b.writeChan)
	b.done.Lock()
	defer b.done.Unlock()
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

// Logger returns a new logger for a subsystem, writing to b. subsystemTag
// is included in every entry. The logger is off until its level is set.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{LevelOff, subsystemTag, b, b.writeChan}
}
