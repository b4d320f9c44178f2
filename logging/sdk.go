package logging

import (
	azlog "github.com/Azure/azure-sdk-for-go/sdk/azcore/log"
	smithylogging "github.com/aws/smithy-go/logging"
	log "github.com/sirupsen/logrus"
)

// SmithyLogger adapts a logrus entry to the logger used by the AWS SDK.
// Warnings stay warnings, everything else is logged at debug.
func SmithyLogger(entry *log.Entry) smithylogging.Logger {
	return smithylogging.LoggerFunc(func(classification smithylogging.Classification, format string, v ...interface{}) {
		switch classification {
		case smithylogging.Warn:
			entry.Warnf(format, v...)
		default:
			entry.Debugf(format, v...)
		}
	})
}

// ForwardAzureLogs sends the Azure SDK's internal request, response and retry
// events to the logger at trace level. They are very chatty so the listener is
// only installed when trace logging is enabled.
func ForwardAzureLogs(logger *log.Logger) {
	if logger == nil || !logger.IsLevelEnabled(log.TraceLevel) {
		azlog.SetListener(nil)
		return
	}

	azlog.SetListener(func(event azlog.Event, msg string) {
		logger.WithField("azure.event", string(event)).Trace(msg)
	})
}
