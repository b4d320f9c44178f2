// Package discovery works out which public cloud, if any, the current process
// is running in.
//
// Discover races one probe per candidate metadata service (see the providers
// package) and returns the record of whichever answers first. Not being in a
// cloud at all is the common case, and shows up as an error that IsNotInCloud
// recognises:
//
//	record, err := discovery.Discover(ctx, discovery.HintAuto, discovery.DefaultConfig())
//	switch {
//	case discovery.IsNotInCloud(err):
//		// carry on without cloud metadata
//	case err != nil:
//		return err
//	default:
//		log.WithFields(log.Fields{"cloud.region": record.Region}).Info("Running in the cloud")
//	}
//
// # Timeouts
//
// Every probe has its own connect and response timeouts, which bound how long a
// missing or slow metadata service can hold it up. On top of that the whole
// discovery is bounded by Config.Timeout. Discover returns as soon as it has an
// answer; probes that lost the race finish in the background within their own
// budgets and are never cancelled.
//
// # Configuration
//
// Config is passed explicitly and nothing is cached between calls. Command line
// tools can use AddDiscoveryFlags and ConfigFromViper to expose it as flags and
// environment variables.
package discovery
