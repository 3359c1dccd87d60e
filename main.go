// The main package for the bookmarks executable.
package main

import "github.com/JakeFAU/bookmarks/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
