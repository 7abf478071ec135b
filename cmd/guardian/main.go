package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/shell-guardian-go/pkg/config"
	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
	"github.com/core-tools/shell-guardian-go/pkg/recovery"
	"github.com/core-tools/shell-guardian-go/pkg/supervisor"
)

const escalationExitCode = 3

type flagOptions struct {
	Config  string `long:"config" short:"c" description:"path to guardian config file"`
	NoShell bool   `long:"no-shell" description:"exit on escalation instead of entering the recovery shell"`
	Args    struct {
		Command string   `positional-arg-name:"command" description:"command to run under supervision"`
		Args    []string `positional-arg-name:"args" description:"arguments passed to the command"`
	} `positional-args:"true"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	// PassAfterNonOption stops flag parsing at the command, so the child's
	// own flags are never eaten
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassAfterNonOption)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	guardianConfig := config.Default()
	if opts.Config != "" {
		guardianConfig, err = config.LoadConfigFromFile(opts.Config)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	// A positional command overrides any configured one
	if opts.Args.Command != "" {
		if err := guardianConfig.ApplyCommand(opts.Args.Command, opts.Args.Args); err != nil {
			fmt.Printf("Failed to resolve command: %v\n", err)
			os.Exit(1)
		}
	}

	if guardianConfig.Supervisor.Execution.ExecutablePath == "" {
		fmt.Println("A command to supervise is required: pass it as an argument or set supervisor.execution.executable_path")
		os.Exit(1)
	}

	rootLogger, err := logging.NewZapLogger(guardianConfig.Logging)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	supervisorLogger := logging.NewLogger(logPrefix("supervisor"), logging.LogFuncs{
		Debugf: rootLogger.Debugf,
		Infof:  rootLogger.Infof,
		Warnf:  rootLogger.Warnf,
		Errorf: rootLogger.Errorf,
	})

	sup, err := supervisor.NewSupervisor(guardianConfig.Supervisor, supervisorLogger)
	if err != nil {
		rootLogger.Errorf("Failed to create supervisor: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := sup.Run(ctx)
	if err == nil {
		// Clean exit: mirror the child so callers see the real result
		os.Exit(outcome.ExitCode)
	}

	if errors.IsCancelledError(err) {
		rootLogger.Infof("Guardian interrupted")
		os.Exit(130)
	}

	if errors.IsEscalationError(err) {
		rootLogger.Errorf("Supervision escalated: %v", err)
		for _, line := range outcome.HistoryLines() {
			fmt.Fprintln(os.Stderr, line)
		}
		if opts.NoShell {
			os.Exit(escalationExitCode)
		}

		shellLogger := logging.NewLogger(logPrefix("recovery"), logging.LogFuncs{
			Debugf: rootLogger.Debugf,
			Infof:  rootLogger.Infof,
			Warnf:  rootLogger.Warnf,
			Errorf: rootLogger.Errorf,
		})
		code, shellErr := recovery.RunShell(recovery.ShellConfig{
			Reason:  err.Error(),
			History: outcome.HistoryLines(),
		}, shellLogger)
		if shellErr != nil {
			rootLogger.Errorf("Recovery shell failed: %v", shellErr)
			os.Exit(escalationExitCode)
		}
		os.Exit(code)
	}

	rootLogger.Errorf("Supervision failed: %v", err)
	os.Exit(1)
}
