package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/eljojo/phoenix"
	"github.com/sirupsen/logrus"
)

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	dataDir := fs.String("data-dir", "phoenix-data", "directory holding the log")
	verbose := fs.Bool("verbose", false, "show progress on stderr")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: phoenix-backup dump -data-dir <dir> [options]

Writes every message of the log, in commit order, to stdout in JSON Lines
format (one JSON object per line).

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	configureLogging(*verbose)

	log, err := phoenix.OpenPebbleLog(*dataDir)
	if err != nil {
		logrus.Fatalf("❌ Failed to open log: %v", err)
	}
	defer log.Close()

	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)
	count := 0
	err = log.Each(context.Background(), func(seq uint64, msg *phoenix.Message) error {
		count++
		return enc.Encode(msg)
	})
	if err != nil {
		logrus.Fatalf("❌ Failed to dump log: %v", err)
	}
	if err := out.Flush(); err != nil {
		logrus.Fatalf("❌ Failed to write output: %v", err)
	}
	logrus.Infof("📦 Dumped %d messages", count)
}
