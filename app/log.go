package app

import (
	"github.com/mwcnet/mwcd/infrastructure/logger"
	"github.com/mwcnet/mwcd/util/panics"
)

var log = logger.RegisterSubSystem("MWCD")
var spawn = panics.GoroutineWrapperFunc(log)
