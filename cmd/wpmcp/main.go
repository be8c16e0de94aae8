package main

import (
	"os"

	"wpmcp/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
