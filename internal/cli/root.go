// Package cli implements the cloudsh command-line interface.
// Built with cobra: the root command runs the interactive shell, exec runs
// a single shell line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudfs/cloudsh/internal/config"
	"github.com/cloudfs/cloudsh/internal/core"
	"github.com/cloudfs/cloudsh/internal/util"
)

// Version is set at build time.
var Version = "dev"

var (
	// Global flags
	cfgFile string
	verbose int

	cfg *config.Config
)

// v holds file, environment and flag settings.
var v = config.New()

// rootCmd is the base command for cloudsh.
var rootCmd = &cobra.Command{
	Use:   "cloudsh",
	Short: "Interactive shell for a remote encrypted-storage account",
	Long: `cloudsh is an interactive shell over a remote, encrypted storage account.

Paths:
  /a/b         from the account root
  //in/x       from the inbox
  //bin/x      from the rubbish bin
  a/b ../c     relative to the working directory

Type 'help' inside the shell for the command list.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := GetEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return NewShell(e, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()).Run(cmd.Context())
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <command line>",
	Short: "Run a single shell command line and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := GetEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		sh := NewShell(e, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		return runOnce(cmd.Context(), sh, strings.Join(args, " "))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		printVersion(cmd.OutOrStdout())
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cloudsh/config.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().String("backend", "memory", "node store backend")
	rootCmd.PersistentFlags().String("fixture", "", "account fixture for the memory backend (YAML)")
	rootCmd.PersistentFlags().String("state-dir", "", "directory of the local state database")
	rootCmd.PersistentFlags().Duration("timeout", 0, "bound on each remote operation (0 waits indefinitely)")
	rootCmd.PersistentFlags().Bool("resume", false, "resume the cached session at start-up")
	rootCmd.PersistentFlags().String("replace-rename", "differs", "rename gate when mv replaces a file (differs|legacy)")

	bindFlag(config.KeyBackend, "backend")
	bindFlag(config.KeyFixture, "fixture")
	bindFlag(config.KeyStateDir, "state-dir")
	bindFlag(config.KeyOpTimeout, "timeout")
	bindFlag(config.KeyResume, "resume")
	bindFlag(config.KeyReplaceRename, "replace-rename")

	// Flags after the first word belong to the shell command ("exec ls -R /").
	execCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)
}

func bindFlag(key, flag string) {
	cobra.CheckErr(v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)))
}

// setup loads the configuration and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.ReadInConfig(v, cfgFile); err != nil {
		return err
	}
	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	util.InitializeLoggerTo(cmd.ErrOrStderr(), util.LevelFromVerbosity(util.ParseLevel(cfg.LogLevel), verbose))
	if cfg.File != "" {
		logger := util.GetLogger("config")
		logger.Debug().Str("file", cfg.File).Msg("Using config file")
	}
	return nil
}

// runOnce executes line; notices are printed and do not fail the command.
func runOnce(ctx context.Context, sh *Shell, line string) error {
	err := sh.Exec(ctx, line)
	switch {
	case err == nil, errors.Is(err, ErrExit):
		return nil
	case core.IsNotice(err):
		sh.report(err)
		return nil
	}
	return err
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "cloudsh version: %s\n", Version)
	fmt.Fprintln(w, "Features enabled:")
	fmt.Fprintln(w, "* SQLCipher state database")
	fmt.Fprintln(w, "* session resume")
	fmt.Fprintln(w, "* mutation journal")
	if os.Getenv(config.PassphraseEnv) == "" {
		fmt.Fprintf(w, "Encryption: disabled (set %s to enable)\n", config.PassphraseEnv)
	} else {
		fmt.Fprintln(w, "Encryption: enabled")
	}
}
