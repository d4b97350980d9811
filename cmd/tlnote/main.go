package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tlnote/common"
	"tlnote/config"
	"tlnote/misc"
	"tlnote/publish"
	"tlnote/state"
	"tlnote/tools"
)

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		// nothing to do, just return
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		// cookie is masked when dumping
		if data, err := config.Dump(env.Cfg); err == nil {
			name := "config/defaults.yaml"
			if len(configFile) > 0 {
				name = "config/" + filepath.Base(configFile)
			}
			env.Rpt.StoreData(name, data)
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()), zap.String("runtime", runtime.Version()), zap.String("hash", misc.GetGitHash()))

	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 {
		env.Log.Info("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))

	// close logging
	env.RestoreStdLog()

	// log is synced now and result can be used in report if necessary, errors
	// must be reported directly to stderr from now on
	if er := env.Rpt.Close(); er != nil {
		err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
	}
	// reporting is closed now - remove empty panic file if any
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		fname := filepath.Join(filepath.Dir(env.Cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
		if fi, er := os.Stat(fname); er == nil && fi.Size() == 0 {
			if er := os.Remove(fname); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, er))
			}
		}
	}
	return
}

// Subcommands return regular errors, they are logged here once instead of
// going through cli.Exit.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	if env.Cfg == nil {
		// configuration was never loaded, log goes nowhere
		return
	}
	env.Log.Error("Program ended with error", zap.Error(err))
	errWasHandled = true
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// do nothing special, error is reported either by exitErrHandler or on
	// exit directly to stderr.
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	state.EnvFromContext(ctx).Log.Warn("Unknown command, nothing to do", zap.String("command", name))
}

func main() {

	// allow graceful shutdown on interrupt, platform calls honor context
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	formats := strings.Join(common.TimelineFmtNames(), ", ")

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "timeline notes for multi-part videos",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:         "publish",
				Usage:        "Places master timeline onto video parts and submits the note",
				OnUsageError: usageErrorHandler,
				Action:       publish.Run,
				Flags:        publish.Flags(),
				ArgsUsage:    "[DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
    file to write assembled note (JSON) to when running with --dry-run or --offline,
    if absent - STDOUT

Video, timeline and note layout come from configuration "publish" section,
command line flags override them. Supported timeline formats: %s.
`, cli.CommandHelpTemplate, formats),
			},
			{
				Name:  "timeline",
				Usage: "Timeline file utilities",
				Commands: []*cli.Command{
					{
						Name:         "convert",
						Usage:        "Converts timeline between formats",
						OnUsageError: usageErrorHandler,
						Action:       tools.Convert,
						Flags:        tools.ConvertFlags(),
						ArgsUsage:    "SOURCE DESTINATION",
						CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    timeline file, supported formats: %s

DESTINATION:
    timeline file, xml could only be read
`, cli.CommandHelpTemplate, formats),
					},
					{
						Name:         "merge",
						Usage:        "Merges part timelines into master timeline",
						OnUsageError: usageErrorHandler,
						Action:       tools.Merge,
						Flags:        tools.MergeFlags(),
						ArgsUsage:    "DESTINATION PART...",
						CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
    master timeline file, format is guessed from extension unless --to is specified

PART:
    part timelines, following forms are supported:
        path to a file: "[path_to_file]part.csv"
        path to a directory: "[path_to_directory]directory" - all timelines under directory
        path to archive with path inside archive: "[path_to_archive]archive.zip[path_in_archive]"

	Timelines found under a directory or an archive are taken in natural
	order of their names (p2 goes before p10). Every --offset applies to the
	next part in that order.
`, cli.CommandHelpTemplate),
					},
				},
			},
			{
				Name:         "upload",
				Usage:        "Uploads images to the platform and prints their locations",
				OnUsageError: usageErrorHandler,
				Action:       tools.Upload,
				ArgsUsage:    "IMAGE...",
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag. Secrets are never
written.
`, cli.CommandHelpTemplate),
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deffered functions after that
	defer func() {
		stop()
		if err != nil {
			// It may happen that log is either not set yet (argument parsing) or already closed,
			// report errors to stderr directly
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err  error
		data []byte
		kind string
	)

	out := os.Stdout
	if len(fname) > 0 {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		kind = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Info("Outputing configuration", zap.String("state", kind), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
