// Command actsim runs Lua scripted grid worlds in the terminal.
package main

import "github.com/sarchlab/actsim/actsim/cmd"

func main() {
	cmd.Execute()
}
