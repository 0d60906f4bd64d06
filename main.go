// The main package for the jjcrawler executable.
package main

import (
	"github.com/lien-Gu/jjcrawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
