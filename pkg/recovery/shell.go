package recovery

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
)

const (
	// EnvActive marks processes running under the recovery shell so nested
	// guardians do not re-escalate.
	EnvActive = "GUARDIAN_ACTIVE"

	// EnvReason carries why the recovery shell was entered.
	EnvReason = "GUARDIAN_REASON"

	recoveryPrompt = "(guardian-recovery) \\$ "

	// A deliberately short PATH: enough to diagnose and repair, nothing
	// user-customized that could be the breakage itself.
	recoveryPath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"
)

// ShellConfig controls how the recovery shell is launched.
type ShellConfig struct {
	// Shell overrides shell autodetection; empty means $SHELL then fallbacks
	Shell string `yaml:"shell,omitempty"`

	// Reason is surfaced in the banner and GUARDIAN_REASON
	Reason string

	// History lines (one per restart attempt) shown in the banner so the
	// user sees what failed before they start digging
	History []string

	// KeepEnvironment passes the full parent environment through instead
	// of the restricted recovery environment
	KeepEnvironment bool `yaml:"keep_environment,omitempty"`
}

// RunShell drops the user into a bare interactive shell after supervision
// escalated. Rc files are suppressed: the user's shell init is the most
// likely culprit for a login crash loop, so the recovery shell must not
// source it. Returns the shell's exit code.
func RunShell(config ShellConfig, logger logging.Logger) (int, error) {
	if os.Getenv(EnvActive) != "" {
		return 0, errors.NewEscalationError("already inside a recovery shell, refusing to nest", nil)
	}

	shell, args := selectShell(config.Shell)
	logger.Warnf("Entering recovery shell, shell: %s, reason: %s", shell, config.Reason)

	printBanner(config.Reason, shell, config.History)

	cmd := exec.Command(shell, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = recoveryEnvironment(config)

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 1, errors.NewSpawnError("failed to run recovery shell", err).WithContext("shell", shell)
	}
	return 0, nil
}

// selectShell picks the recovery shell and the flags that suppress its rc
// files. Unknown shells fall back to /bin/sh, which is guaranteed
// POSIX-minimal.
func selectShell(override string) (string, []string) {
	shell := override
	if shell == "" {
		shell = os.Getenv("SHELL")
	}

	base := filepath.Base(shell)
	switch base {
	case "bash":
		if _, err := exec.LookPath(shell); err == nil {
			return shell, []string{"--norc", "--noprofile"}
		}
	case "zsh":
		if _, err := exec.LookPath(shell); err == nil {
			return shell, []string{"--no-rcs"}
		}
	}

	if bash, err := exec.LookPath("bash"); err == nil {
		return bash, []string{"--norc", "--noprofile"}
	}
	return "/bin/sh", nil
}

func recoveryEnvironment(config ShellConfig) []string {
	var env []string
	if config.KeepEnvironment {
		env = os.Environ()
	} else {
		// Minimal environment: identity and terminal only
		for _, key := range []string{"HOME", "USER", "LOGNAME", "TERM", "LANG"} {
			if value := os.Getenv(key); value != "" {
				env = append(env, key+"="+value)
			}
		}
		env = append(env, "PATH="+recoveryPath)
	}

	env = append(env,
		EnvActive+"=1",
		EnvReason+"="+config.Reason,
		"PS1="+recoveryPrompt,
	)
	return env
}

func printBanner(reason, shell string, history []string) {
	fmt.Fprintln(os.Stderr, strings.Repeat("=", 60))
	fmt.Fprintln(os.Stderr, "  GUARDIAN RECOVERY SHELL")
	if reason != "" {
		fmt.Fprintf(os.Stderr, "  Reason: %s\n", reason)
	}
	for _, line := range history {
		fmt.Fprintf(os.Stderr, "    %s\n", line)
	}
	fmt.Fprintf(os.Stderr, "  Shell: %s (rc files suppressed)\n", shell)
	fmt.Fprintln(os.Stderr, "  Fix your shell configuration, then exit to retry.")
	fmt.Fprintln(os.Stderr, strings.Repeat("=", 60))
}
