// Package main serves as the entry point for the embedqueue application.
// It provides a durable embedding-generation queue with worker coordination,
// rate-limit aware scheduling, and circuit breaking around the provider API.
//
//	@title			Embedding Queue API
//	@version		1.0.0
//	@description	API for enqueueing embedding work, inspecting queue health, and controlling workers. Items are persisted in PostgreSQL, claimed in batches by leased workers, and processed against an external embedding provider with retry backoff and rate-limit deferral.
//	@contact.name	Embedding Queue API Support
//	@contact.email	support@embedqueue.dev
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//	@host			localhost:8080
//	@BasePath		/api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
package main

import "embedqueue/cmd"

func main() {
	cmd.Execute()
}
