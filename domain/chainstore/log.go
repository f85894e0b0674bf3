package chainstore

import (
	"github.com/mwcnet/mwcd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("STOR")
