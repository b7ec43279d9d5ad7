// The main package for the tracker executable.
package main

import (
	"github.com/JakeFAU/follower-tracker/cmd"
)

// main defers all execution to the cobra command tree.
func main() {
	cmd.Execute()
}
