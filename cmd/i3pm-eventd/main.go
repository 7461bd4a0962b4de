package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/i3pm/eventcore/internal/config"
	"github.com/i3pm/eventcore/internal/eventd"
)

var version = "0.1.0"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("i3pm-eventd %s\n", version)
		os.Exit(0)
	}

	if configPath == "" {
		loader := config.NewLoader()
		found, err := loader.FindConfig("i3pm-eventd.hjson", "i3pm-eventd.json")
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		configPath = found
	}

	log.Printf("Using config: %s", configPath)

	daemon, err := eventd.New(eventd.Options{ConfigPath: configPath, Version: version})
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	ctx := context.Background()
	if err := daemon.Run(ctx); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}
}
