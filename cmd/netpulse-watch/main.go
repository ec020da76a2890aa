// netpulse-watch subscribes to a netpulse server and prints the telemetry
// it receives. It also sends maintenance broadcasts and device statuses
// through the server's HTTP API.
package main

import "github.com/nerrad567/netpulse/internal/cli"

func main() {
	cli.Main()
}
