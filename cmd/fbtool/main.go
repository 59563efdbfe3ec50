// fbtool creates, inspects, merges and exports frame buffer checkpoints.
//
// Usage:
//
//	fbtool [-v] <command> [options] [arguments]
//
// Commands:
//
//	synth   -w W -h H [-format F] [-part i/n] [-codec C] -o out.fbck
//	        Render a gradient test frame, keeping tiles with index%n == i.
//	info    file.fbck [file.fbck ...]
//	        Print format, size, codec, tile count and coverage.
//	merge   -o out.fbck in.fbck [in.fbck ...]
//	        Apply checkpoints in order; the last one covering a pixel wins.
//	export  [-c settings.toml] [-exposure E] [-gamma G] [-dither] [-noalpha]
//	        [-format F] [-o out.png] in.fbck
//	        Quantize a Float4 checkpoint to an 8-bit image.
//	tile    -o out.fbck in.fbck
//	        Rewrite a raster checkpoint in tile order.
//	untile  -w W -h H -o out.fbck in.fbck
//	        Rewrite a tile-ordered checkpoint as a W x H raster.
//
// Commands that write checkpoints also accept -codec, -level, -half and
// -workers.
//
// Global options:
//
//	-v          Log debug output to stderr.
//	-c FILE     Load settings from a TOML file (all commands).
//	--version   Show version information.
//
// Exit codes:
//
//	0: Success
//	1: Command failed
//	2: Usage error
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mrjoshuak/go-fbutil/fb"
	"github.com/mrjoshuak/go-fbutil/internal/config"
)

const version = "1.0.0"

// errUsage marks errors that should print usage and exit with status 2.
var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name string
	run  func(env *env, args []string) error
}

var commands = []command{
	{"synth", runSynth},
	{"info", runInfo},
	{"merge", runMerge},
	{"export", runExport},
	{"tile", runTile},
	{"untile", runUntile},
}

// env is the state shared by all commands.
type env struct {
	stdout   io.Writer
	stderr   io.Writer
	settings config.Settings
	flags    config.Flags
}

func run(args []string, stdout, stderr io.Writer) int {
	e := &env{stdout: stdout, stderr: stderr, settings: config.Default()}
	defer fb.SetLogger(nil)

	var settingsPath string
	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-v", "--verbose":
			fb.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			continue
		case "-c", "--config":
			if i+1 >= len(args) {
				fmt.Fprintf(stderr, "Missing value for %s\n", arg)
				return 2
			}
			i++
			settingsPath = args[i]
			continue
		case "--help", "help":
			printUsage(stdout)
			return 0
		case "--version":
			fmt.Fprintf(stdout, "fbtool version %s\n", version)
			return 0
		}
		break
	}
	if i >= len(args) {
		fmt.Fprintln(stderr, "Error: No command specified")
		printUsage(stderr)
		return 2
	}

	name := args[i]
	var cmd *command
	for j := range commands {
		if commands[j].name == name {
			cmd = &commands[j]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		printUsage(stderr)
		return 2
	}

	if settingsPath != "" {
		s, err := config.Load(settingsPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		e.settings = s
	}

	err := cmd.run(e, args[i+1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		printUsage(stderr)
		return 2
	default:
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
}

// apply resolves flags into the settings, validates them and configures fb.
func (e *env) apply() error {
	e.settings.Resolve(e.flags)
	if err := e.settings.Validate(); err != nil {
		return err
	}
	fb.SetParallelConfig(e.settings.ParallelConfig())
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: fbtool [-v] [-c settings.toml] <command> [options] [arguments]

Commands:
  synth   -w W -h H [-format F] [-part i/n] [-codec C] -o out.fbck
  info    file.fbck [file.fbck ...]
  merge   [-codec C] -o out.fbck in.fbck [in.fbck ...]
  export  [-exposure E] [-gamma G] [-dither] [-noalpha] [-format F] [-o out] in.fbck
  tile    [-codec C] -o out.fbck in.fbck
  untile  -w W -h H [-codec C] -o out.fbck in.fbck

Writing commands also take -level N, -half (float payloads at half
precision) and -workers N.

Options:
  -v, --verbose   Log debug output to stderr
  -c, --config    Load settings from a TOML file
  --help          Show this help message
  --version       Show version information`)
}
