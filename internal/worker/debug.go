package worker

import (
	"github.com/sirupsen/logrus"

	"shopchat/internal/logging"
)

var workerLog = logrus.WithField("component", "worker")

func debugLog(format string, args ...interface{}) {
	if logging.DebugEnabled {
		workerLog.Debugf(format, args...)
	}
}
