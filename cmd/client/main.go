// Package main provides the entry point for the standalone EmbedQueue CLI client.
// This binary talks only to the HTTP API, so it can be distributed
// independently of the server and worker processes.
//
// Usage:
//
//	embedqueue-client health
//	embedqueue-client queue enqueue --source-type receipts --source-id 42
//	embedqueue-client queue get <uuid>
//	embedqueue-client queue status
//	embedqueue-client workers start|stop|status
//	embedqueue-client breaker status
//	embedqueue-client breaker reset --reason "provider recovered"
//	embedqueue-client metrics rollups --granularity hourly
//
// Global flags:
//
//	--api-url    API server URL (default: http://localhost:8080)
//	--timeout    Request timeout duration (default: 30s)
//
// All output is JSON-formatted for consumption by automation tools.
package main

import (
	"embedqueue/internal/client/commands"
	"os"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
