/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Wireserver is a concurrent HTTP/1.1 server working directly on TCP connections.
// Every connection gets a single request. Requests are served by the built-in routes
// or forwarded to an origin, with per-client rate limiting and a response cache in front.
//
// Usage:
//
//	# Serve the built-in routes on :8080
//	wireserver serve
//
//	# Load configuration from a file and override the port
//	wireserver serve --config config.yaml --port 9000
//
//	# Forward requests to an origin
//	wireserver serve --mode forward --origin 127.0.0.1:8081
//
//	# Show version information
//	wireserver version
package main

func main() {
	Execute()
}
