package logger

import "time"

// LogElapsed logs that operation started and returns a function that logs
// how long it took. Both are logged at debug level.
//
//	defer logger.LogElapsed(log, "Compact")()
func LogElapsed(log *Logger, operation string) func() {
	start := time.Now()
	log.Debugf("%s started", operation)
	return func() {
		log.Debugf("%s done in %s", operation, time.Since(start))
	}
}
