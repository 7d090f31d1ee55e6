package main

import (
	"context"
	"fmt"

	"github.com/vncbridge/rfbcache/coordinator"
)

// StatsCmd joins the cache directory's coordinator election as an ephemeral
// participant (a slave if a master is running, otherwise the master itself)
// and prints a one-shot snapshot of that participant's own counters. The
// running master's counters are not fetched.
func StatsCmd() *Command {
	return &Command{
		Usage: "stats <dir>",
		Short: "Print a coordinator's aggregate stats",
		Exec: func(_ context.Context, o *IO, cfg Config, _ []string) error {
			coord, err := coordinator.Create(cfg.CacheDir, coordinator.Options{})
			if err != nil {
				return fmt.Errorf("creating coordinator: %w", err)
			}
			defer coord.Stop()

			if err := coord.Start(); err != nil {
				return fmt.Errorf("starting coordinator: %w", err)
			}

			stats := coord.Stats()

			o.Printf("role:             %s\n", stats.Role)
			o.Printf("uptime:           %s\n", stats.Uptime())
			o.Printf("connected slaves: %d\n", stats.ConnectedSlaves)
			o.Printf("write reqs recv:  %d\n", stats.WriteRequestsRecv)
			o.Printf("write reqs sent:  %d\n", stats.WriteRequestsSent)
			o.Printf("index updates recv: %d\n", stats.IndexUpdatesRecv)
			o.Printf("index updates sent: %d\n", stats.IndexUpdatesSent)
			o.Printf("bytes written for slaves: %d\n", stats.BytesWrittenForSlaves)

			return nil
		},
	}
}
