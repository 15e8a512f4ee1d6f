package main

import (
	"fmt"
	"os"

	"github.com/siftdata/sift/cmd/sift/load"
	"github.com/siftdata/sift/cmd/sift/serve"
	"github.com/siftdata/sift/cmd/sift/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve.Run(os.Args[2:])
	case "load":
		load.Run(os.Args[2:])
	case "version":
		version.Run()
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sift - Dataset Exploration Server

Usage:
  sift <command> [options]

Commands:
  serve     Start the HTTP server
  load      Ingest a JSONL file into a dataset and persist it
  version   Print version information
  help      Show this help message

Run 'sift <command> --help' for more information on a command.`)
}
