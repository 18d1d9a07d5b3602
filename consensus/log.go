package consensus

import (
	"github.com/umbranet/umbrad/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.CHAN)
