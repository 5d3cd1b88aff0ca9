// Package main runs the jobsift ingestion service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}
