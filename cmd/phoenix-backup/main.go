package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "dump":
		dumpCmd(os.Args[2:])
	case "restore":
		restoreCmd(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `phoenix-backup - Log backup and restore tool

Usage:
  phoenix-backup <command> [options]

Commands:
  dump      Dump every message of a log to stdout (JSONL format)
  restore   Import messages from stdin into a log

Examples:
  # Dump a log to file
  phoenix-backup dump -data-dir phoenix-data > backup.jsonl

  # Restore into another log (messages already there are skipped)
  phoenix-backup restore -data-dir other-data < backup.jsonl

For more information on each command, use:
  phoenix-backup <command> -help
`)
}

func configureLogging(verbose bool) {
	// Log to stderr so stdout is clean for JSON
	logrus.SetOutput(os.Stderr)
	if verbose {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}
