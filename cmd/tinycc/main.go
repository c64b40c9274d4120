// Command tinycc compiles tinyc source files to TM assembly.
package main

import (
	"os"

	"github.com/tinyc-lang/tinyc/cmd/tinycc/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
