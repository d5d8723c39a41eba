package main

import (
	"github.com/xkilldash9x/enroll-cli/cmd"
)

// main is the entry point for the enroll CLI.
func main() {
	cmd.Execute()
}
