package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pellicule/internal/config"

	"github.com/docopt/docopt-go"
)

// Version is the CLI version reported by --version.
const Version = "1.0.0"

const usage = `Pellicule, a film photography sharing client.

Configuration is read from config.yml and the environment (API_URL,
REALTIME_URL, STORAGE_DRIVER, ...).

Usage:
    pellicule login --email=<email> --password=<password>
    pellicule logout
    pellicule whoami
    pellicule feed [--refresh]
    pellicule rolls
    pellicule roll <id>
    pellicule photo <id>
    pellicule like <photo_id>
    pellicule comment <photo_id> <content>
    pellicule uncomment <photo_id> <comment_id>
    pellicule profile
    pellicule post <roll_id> <url> [<caption>]
    pellicule unpost <photo_id>
    pellicule watch [<photo_id>]
    pellicule -h | --help
    pellicule --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --email=<email>        Account email.
    --password=<password>  Account password.
    --refresh              Drop the cached feed sample and fetch a new one.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		log.Fatalf("parse arguments: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		stop()
		log.Fatalf("pellicule: %v", err)
	}
}
