package chain

import (
	"github.com/mwcnet/mwcd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CHAN")
