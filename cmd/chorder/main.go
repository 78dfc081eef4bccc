// chorder resolves chords typed on a chorded keyboard.
//
//	chorder run             Resolve chords from the configured source
//	chorder sim             Simulate the keyboard in the terminal
//	chorder replay <file>   Replay an event script and print each resolution
//	chorder check           Validate the configuration and chord table
//	chorder keys            List the key registry
//	chorder table [mode]    List the chords of a mode
//	chorder stats           Show journal statistics
package main

import (
	"os"

	"chorder/cmd/chorder/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
