package testctl

import (
	"fmt"
	"os"
)

type Config struct {
	APIPort int
	LogLvl  string
}

func defaultConfig() *Config {
	return &Config{
		APIPort: envInt("CHATD_API_PORT", 18090),
		LogLvl:  envStr("TESTCTL_LOG_LEVEL", "info"),
	}
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code (0 for success, non-zero on error).
func MainWithArgs(args []string) int {
	cfg := defaultConfig()
	root := buildRootCmdWith(cfg)
	if len(args) == 0 {
		_ = root.Help()
		return 2
	}
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// Main returns an exit code (0 for success, non-zero on error) for use by cmd/testctl.
func Main() int { return MainWithArgs(os.Args[1:]) }
