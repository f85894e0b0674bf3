package apiserver

import (
	"github.com/mwcnet/mwcd/infrastructure/logger"
	"github.com/mwcnet/mwcd/util/panics"
)

var log = logger.RegisterSubSystem("APIS")
var spawn = panics.GoroutineWrapperFunc(log)
