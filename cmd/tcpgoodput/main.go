// Command tcpgoodput measures the goodput of bulk TCP flows that share the
// bottleneck of a dumbbell network.
package main

import "github.com/sarchlab/tcpgoodput/cmd/tcpgoodput/cmd"

func main() {
	cmd.Execute()
}
