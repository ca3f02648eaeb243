package main

import (
	"os"

	"github.com/gonzalop/ftpd/cmd/ftpd/command"
)

func main() {
	if err := command.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
