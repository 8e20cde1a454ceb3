// Command hashtreectl queries a hash tree prefix index from the terminal.
//
// It either builds an index locally from a JSON record file or HTTP
// endpoint (falling back to a fixed three-record set when neither yields
// data) or forwards the query to a running search service.
//
// Usage:
//
//	hashtreectl query --file records.json ap
//	hashtreectl query --remote http://localhost:8080 new york
//	hashtreectl stats --url http://localhost:3000/data
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
