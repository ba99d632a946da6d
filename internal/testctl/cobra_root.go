package testctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// buildRootCmdWith constructs the Cobra command tree wired to the fn* actions.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "testctl",
		Short:         "Dev and test utilities for the chatd server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	root.PersistentFlags().Int("api-port", cfg.APIPort, "Port for the smoke-test server (defaults CHATD_API_PORT or 18090)")
	root.PersistentFlags().String("log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults TESTCTL_LOG_LEVEL or info)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("api-port"); f != nil {
			var n int
			_, _ = fmt.Sscanf(f.Value.String(), "%d", &n)
			if n != 0 {
				cfg.APIPort = n
			}
		}
		if f := cmd.InheritedFlags().Lookup("log-level"); f != nil {
			if v := f.Value.String(); v != "" {
				cfg.LogLvl = v
			}
		}
		SetLogLevel(cfg.LogLvl)
	}

	// install group
	installCmd := &cobra.Command{Use: "install", Short: "Install dependencies/tools", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("install requires a subcommand: all|go|llama|llama:cuda")
	}}
	installAll := &cobra.Command{Use: "all", Short: "Download Go modules and build llama.cpp", Example: "  testctl install all", RunE: func(cmd *cobra.Command, args []string) error {
		if err := fnInstallGo(); err != nil {
			return err
		}
		return fnInstallLlama()
	}}
	installGoCmd := &cobra.Command{Use: "go", Short: "Download Go modules", Example: "  testctl install go", RunE: func(cmd *cobra.Command, args []string) error { return fnInstallGo() }}
	installLlamaCmd := &cobra.Command{Use: "llama", Short: "Build llama.cpp (CPU)", RunE: func(cmd *cobra.Command, args []string) error { return fnInstallLlama() }}
	installLlamaCUDACmd := &cobra.Command{Use: "llama:cuda", Short: "Build llama.cpp with CUDA", RunE: func(cmd *cobra.Command, args []string) error { return fnInstallLlamaCUDA() }}
	installCmd.AddCommand(installAll, installGoCmd, installLlamaCmd, installLlamaCUDACmd)
	root.AddCommand(installCmd)

	// test group
	testCmd := &cobra.Command{Use: "test", Short: "Run tests", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("test requires a subcommand: go|smoke|all")
	}}
	testGo := &cobra.Command{Use: "go", Short: "Run Go tests", RunE: func(cmd *cobra.Command, args []string) error { return fnRunGoTests() }}
	testSmoke := &cobra.Command{Use: "smoke", Short: "Start a live server with host models and drive one session exchange", Example: "  testctl test smoke", RunE: func(cmd *cobra.Command, args []string) error { return fnRunSmoke(cfg) }}
	testAll := &cobra.Command{Use: "all", Short: "Run all test suites", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("test all requires 'auto'")
	}}
	testAllAuto := &cobra.Command{Use: "auto", Short: "Go tests, then live smoke if host models exist", RunE: func(cmd *cobra.Command, args []string) error {
		if err := fnRunGoTests(); err != nil {
			return err
		}
		if fnHasHostModels() {
			info("[testctl] Detected host models, running live smoke")
			return fnRunSmoke(cfg)
		}
		info("[testctl] No host models, skipping live smoke")
		return nil
	}}
	testAll.AddCommand(testAllAuto)
	testCmd.AddCommand(testGo, testSmoke, testAll)
	root.AddCommand(testCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(os.Stdout) }})
	root.AddCommand(completionCmd)

	return root
}
