package logger

import "strings"

// Level is the level at which a logger is configured. Entries below it are
// dropped.
type Level uint32

// Level constants.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelTags = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT", "OFF"}

var levelsByName = map[string]Level{
	"trace":    LevelTrace,
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warn":     LevelWarn,
	"error":    LevelError,
	"critical": LevelCritical,
	"off":      LevelOff,
}

// LevelFromString returns the level named s, either by its full name or
// by its tag, case-insensitively. Unknown names return LevelInfo and false.
func LevelFromString(s string) (Level, bool) {
	s = strings.ToLower(s)
	if level, ok := levelsByName[s]; ok {
		return level, true
	}
	for level, tag := range levelTags {
		if strings.ToLower(tag) == s {
			return Level(level), true
		}
	}
	return LevelInfo, false
}

// String returns the three letter tag of the level used in log entries.
func (l Level) String() string {
	if l >= LevelOff {
		return levelTags[LevelOff]
	}
	return levelTags[l]
}
