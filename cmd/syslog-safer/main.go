// Command syslog-safer relays a syslog socket to another socket, through a
// bounded buffer, so that a slow or stalled consumer never blocks logging.
package main

import (
	"os"

	"github.com/joeycumines/go-syslogsafer/relay"
)

func main() {
	if err := newRootCommand(os.Stderr, relay.Run).Execute(); err != nil {
		os.Exit(1)
	}
}
