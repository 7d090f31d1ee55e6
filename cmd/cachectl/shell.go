package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/vncbridge/rfbcache/coordinator"
	"github.com/vncbridge/rfbcache/coordproto"
)

// ShellCmd drives a coordinator interactively: a liner-backed REPL modelled
// on cmd/sloty's, with commands scoped to what a coordinator exposes
// (role, write, stats) rather than a key/value cache.
func ShellCmd() *Command {
	return &Command{
		Usage: "shell <dir>",
		Short: "Interactive REPL over a coordinator-managed cache directory",
		Exec: func(_ context.Context, o *IO, cfg Config, _ []string) error {
			coord, err := coordinator.Create(cfg.CacheDir, coordinator.Options{})
			if err != nil {
				return fmt.Errorf("creating coordinator: %w", err)
			}
			defer coord.Stop()

			if err := coord.Start(); err != nil {
				return fmt.Errorf("starting coordinator: %w", err)
			}

			repl := &shellREPL{o: o, cfg: cfg, coord: coord}

			return repl.run()
		},
	}
}

type shellREPL struct {
	o     *IO
	cfg   Config
	coord coordinator.Coordinator
	liner *liner.State
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cachectl_history")
}

func (r *shellREPL) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(shellHistoryFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	r.o.Printf("cachectl shell (role=%s, dir=%s)\n", r.coord.Role(), r.cfg.CacheDir)
	r.o.Println("Type 'help' for available commands.")
	r.o.Println()

	for {
		line, err := r.liner.Prompt("cachectl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				r.o.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.o.Println("Bye!")
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()
		case "role":
			r.o.Println(r.coord.Role().String())
		case "info":
			r.o.Println(FormatConfig(r.cfg))
		case "stats":
			r.cmdStats()
		case "write":
			r.cmdWrite(args)
		default:
			r.o.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *shellREPL) saveHistory() {
	if path := shellHistoryFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

func (r *shellREPL) completer(line string) []string {
	commands := []string{"role", "write", "stats", "info", "help", "exit", "quit", "q"}

	var completions []string

	lower := strings.ToLower(line)

	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *shellREPL) printHelp() {
	r.o.Println("Commands:")
	r.o.Println("  role                 Show this coordinator's role")
	r.o.Println("  write <payload>      Issue a write request for payload (a UTF-8 string)")
	r.o.Println("  stats                Show aggregate coordinator stats")
	r.o.Println("  info                 Show the loaded configuration")
	r.o.Println("  help                 Show this help")
	r.o.Println("  exit / quit / q      Exit")
}

func (r *shellREPL) cmdStats() {
	s := r.coord.Stats()

	r.o.Printf("role=%s uptime=%s slaves=%d write_recv=%d write_sent=%d idx_recv=%d idx_sent=%d bytes=%d\n",
		s.Role, s.Uptime(), s.ConnectedSlaves, s.WriteRequestsRecv, s.WriteRequestsSent,
		s.IndexUpdatesRecv, s.IndexUpdatesSent, s.BytesWrittenForSlaves)
}

func (r *shellREPL) cmdWrite(args []string) {
	if len(args) < 1 {
		r.o.Println("Usage: write <payload>")

		return
	}

	payload := []byte(strings.Join(args, " "))
	hash := sha256.Sum256(payload)

	entry := coordproto.WireIndexEntry{
		CacheID: hashToID(hash),
		Width:   0,
		Height:  0,
	}

	got, ok := r.coord.RequestWrite(entry, payload)
	if !ok {
		r.o.Println("write rejected")

		return
	}

	r.o.Printf("OK: cache_id=%d shard=%d offset=%d length=%d\n", got.CacheID, got.ShardID, got.Offset, got.Length)
}

func hashToID(hash [32]byte) uint64 {
	encoded := hex.EncodeToString(hash[:8])
	id, _ := strconv.ParseUint(encoded, 16, 64)

	return id
}
