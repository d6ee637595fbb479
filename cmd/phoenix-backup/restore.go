package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eljojo/phoenix"
	"github.com/sirupsen/logrus"
)

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dataDir := fs.String("data-dir", "phoenix-data", "directory holding the log")
	timeout := fs.Duration("timeout", 5*time.Minute, "operation timeout")
	verbose := fs.Bool("verbose", false, "show progress on stderr")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: phoenix-backup restore -data-dir <dir> [options]

Imports messages from stdin (JSON Lines format) into the log. Messages whose
key is already stored are skipped, so restoring the same backup twice is safe.

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logrus.Info("📖 Reading messages from stdin...")
	imported, duplicates, err := restore(ctx, log, bufio.NewScanner(os.Stdin))
	if err != nil {
		logrus.Fatalf("❌ Restore failed: %v", err)
	}
	logrus.Infof("✅ Imported %d messages (%d already present)", imported, duplicates)
}

func restore(ctx context.Context, log *phoenix.PebbleLog, scanner *bufio.Scanner) (imported, duplicates int, err error) {
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var msg phoenix.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return imported, duplicates, fmt.Errorf("parse message on line %d: %w", lineNum, err)
		}
		_, ok, err := log.Import(ctx, msg)
		if err != nil {
			return imported, duplicates, fmt.Errorf("import message on line %d: %w", lineNum, err)
		}
		if ok {
			imported++
		} else {
			duplicates++
		}
	}
	if err := scanner.Err(); err != nil {
		return imported, duplicates, fmt.Errorf("read stdin: %w", err)
	}
	return imported, duplicates, nil
}
