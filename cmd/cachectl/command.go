package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a cachectl subcommand with unified help generation.
type Command struct {
	// Flags defines command-specific flags. Nil if the command takes none
	// beyond its positional args.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "cachectl" in help,
	// e.g. "serve <dir>".
	Usage string

	// Short is a one-line description shown in the top-level command list.
	Short string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, cfg Config, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the top-level usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.Usage, c.Short)
}

// PrintHelp prints "cachectl <cmd> --help" output.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: cachectl", c.Usage)
	o.Println()
	o.Println(c.Short)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns the process exit code.
func (c *Command) Run(ctx context.Context, o *IO, cfg Config, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	c.Flags.SetOutput(&strings.Builder{}) // discard pflag's own error/usage output

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, cfg, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}
