package main

import (
	"context"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

// Run is cachectl's entry point. Returns the process exit code.
func Run(_ io.Reader, out, errOut io.Writer, args []string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("cachectl", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagDir := globalFlags.String("dir", "", "Override cache directory")

	if err := globalFlags.Parse(args[1:]); err != nil {
		errIO := NewIO(out, errOut)
		errIO.ErrPrintln("error:", err)
		printGlobalOptions(errIO)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}

	cmdAndArgs := globalFlags.Args()

	cmdIO := NewIO(out, errOut)
	commands := allCommands()

	if *flagHelp || len(cmdAndArgs) == 0 {
		printUsage(cmdIO, commands)

		if *flagHelp {
			return 0
		}

		return 1
	}

	cmdName := cmdAndArgs[0]
	cmdArgs := cmdAndArgs[1:]

	var cmd *Command

	for _, c := range commands {
		if c.Name() == cmdName {
			cmd = c

			break
		}
	}

	if cmd == nil {
		cmdIO.ErrPrintln("error: unknown command:", cmdName)
		printUsage(cmdIO, commands)

		return 1
	}

	// "dir" can be given positionally (cachectl serve <dir>) or via --dir;
	// the positional form is more convenient and takes precedence since
	// it's what every subcommand's Usage documents.
	dirOverride := *flagDir

	if len(cmdArgs) > 0 && !strings.HasPrefix(cmdArgs[0], "-") {
		dirOverride = cmdArgs[0]
		cmdArgs = cmdArgs[1:]
	}

	cfg, err := LoadConfig(workDir, *flagConfig, dirOverride)
	if err != nil {
		cmdIO.ErrPrintln("error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			<-sigCh
			cancel()
		}()
	}

	return cmd.Run(ctx, cmdIO, cfg, cmdArgs)
}

func allCommands() []*Command {
	return []*Command{
		ServeCmd(),
		StatsCmd(),
		ShellCmd(),
	}
}

const globalOptionsHelp = `  -h, --help             Show help
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  --dir <dir>            Override cache directory`

func printGlobalOptions(o *IO) {
	o.ErrPrintln("Usage: cachectl [flags] <command> <dir> [args]")
	o.ErrPrintln()
	o.ErrPrintln("Global flags:")
	o.ErrPrintln(globalOptionsHelp)
}

func printUsage(o *IO, commands []*Command) {
	o.Println("cachectl - RFB cache coordinator diagnostic tool")
	o.Println()
	o.Println("Usage: cachectl [flags] <command> <dir> [args]")
	o.Println()
	o.Println("Flags:")
	o.Println(globalOptionsHelp)
	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands {
		o.Println(cmd.HelpLine())
	}
}
