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
	"github.com/core-tools/shell-guardian-go/pkg/keeper"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
	"github.com/core-tools/shell-guardian-go/pkg/survival"
)

// Exit codes for check mode, stable for scripting:
// 0 healthy (repairs count as healthy), 2 some locations unrepairable,
// 3 no quorum, 1 anything else.
const (
	exitHealthy  = 0
	exitError    = 1
	exitDegraded = 2
	exitNoQuorum = 3
)

type flagOptions struct {
	Config string `long:"config" short:"c" description:"path to guardian config file" required:"true"`
	Args   struct {
		Mode string `positional-arg-name:"mode" description:"check (one pass) or service (periodic)" required:"true"`
	} `positional-args:"true"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(exitError)
	}

	mode := opts.Args.Mode
	if mode != "check" && mode != "service" {
		fmt.Printf("Unknown mode %q, want check or service\n", mode)
		os.Exit(exitError)
	}

	guardianConfig, err := config.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(exitError)
	}

	rootLogger, err := logging.NewZapLogger(guardianConfig.Logging)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(exitError)
	}

	keeperLogger := logging.NewLogger(logPrefix("keeper"), logging.LogFuncs{
		Debugf: rootLogger.Debugf,
		Infof:  rootLogger.Infof,
		Warnf:  rootLogger.Warnf,
		Errorf: rootLogger.Errorf,
	})
	storeLogger := logging.NewLogger(logPrefix("store"), logging.LogFuncs{
		Debugf: rootLogger.Debugf,
		Infof:  rootLogger.Infof,
		Warnf:  rootLogger.Warnf,
		Errorf: rootLogger.Errorf,
	})

	store, err := survival.NewStore(guardianConfig.BuildLocations(), storeLogger)
	if err != nil {
		rootLogger.Errorf("Failed to create survival store: %v", err)
		os.Exit(exitError)
	}

	pinned, err := guardianConfig.Pinned()
	if err != nil {
		rootLogger.Errorf("Invalid pinned fingerprint: %v", err)
		os.Exit(exitError)
	}

	k, err := keeper.NewKeeper(guardianConfig.Keeper, store, pinned, keeperLogger)
	if err != nil {
		rootLogger.Errorf("Failed to create keeper: %v", err)
		os.Exit(exitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "check":
		os.Exit(runCheck(ctx, k, rootLogger))
	case "service":
		if err := k.RunService(ctx); err != nil {
			rootLogger.Errorf("Keeper service failed: %v", err)
			os.Exit(exitError)
		}
	}
}

func runCheck(ctx context.Context, k *keeper.Keeper, logger logging.Logger) int {
	report, err := k.Tick(ctx)
	if err != nil {
		if errors.IsNoQuorumError(err) {
			fmt.Println("no quorum among survival copies, repairs withheld")
			return exitNoQuorum
		}
		logger.Errorf("Keeper check failed: %v", err)
		return exitError
	}
	if report == nil {
		// Another keeper held the lock; nothing to report
		fmt.Println("another keeper holds the lock, pass skipped")
		return exitHealthy
	}
	for _, line := range report.HumanLines() {
		fmt.Println(line)
	}
	if !report.AllHealthy() {
		return exitDegraded
	}
	return exitHealthy
}
