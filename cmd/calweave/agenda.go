package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/calweave/calweave/internal/agenda"
)

// runAgenda lists existing events from the configured read-only sources.
func runAgenda(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agenda", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "path to config file (default: ~/.config/calweave/config.yaml)")
		verbose    = fs.Bool("v", false, "verbose logging")
		days       = fs.Int("days", 7, "how many days ahead to list")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return errors.New("no sources configured")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	preview, err := agenda.NewPreview(cfg.Sources)
	if err != nil {
		return err
	}

	now := time.Now()
	events, err := preview.Fetch(ctx, now, now.AddDate(0, 0, *days))
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No upcoming events")
		return nil
	}

	var lastDay string
	for _, e := range events {
		if e.End.Before(now) {
			continue
		}
		day := e.Start.In(loc).Format("Mon 2006-01-02")
		if day != lastDay {
			fmt.Printf("\n%s\n", day)
			lastDay = day
		}
		line := fmt.Sprintf("  %s – %s  %s",
			e.Start.In(loc).Format("15:04"),
			e.End.In(loc).Format("15:04"),
			e.Title)
		if e.Location != "" {
			line += "  @ " + e.Location
		}
		fmt.Printf("%s  (%s)\n", line, e.Source)
	}

	return nil
}
