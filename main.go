// The main package for the lastplayed executable.
package main

import (
	"github.com/JakeFAU/lastplayed-crawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
