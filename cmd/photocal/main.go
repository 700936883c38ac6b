package main

import (
	"os"

	"photocal/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
