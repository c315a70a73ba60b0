package main

import (
	"fmt"
	"os"

	"github.com/dstanton/minute/cli"
	"github.com/dstanton/minute/config"
	"github.com/dstanton/minute/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogPath, cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	rootCmd := cli.NewRootCmd(&cli.Dependencies{Config: cfg})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
