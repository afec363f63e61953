// Package logging provides structured logging utilities for kratos.
//
// All packages log through log/slog. This package keeps attribute names
// consistent across the orchestrator, the execution adapter and the cluster
// backends, and sanitizes values that must never reach logs verbatim:
//
//	logger := logging.WithSession(slog.Default(), sessionID)
//	logger.Info("turn completed",
//	    logging.Cluster("staging"),
//	    logging.Function("scale_deployment"),
//	    logging.Status(logging.StatusSuccess))
//
// API server URLs have IP addresses redacted, bearer tokens are reduced to a
// length marker and parameter maps are scrubbed of inline manifests and
// credential-looking keys before they are logged.
package logging
