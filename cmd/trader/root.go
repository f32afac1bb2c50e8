package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/bot"
	"github.com/rovshanmuradov/origin-trader/internal/config"
	"github.com/rovshanmuradov/origin-trader/internal/utils/logger"
)

var version = "0.1.0"

var (
	cfgFile    string
	envFile    string
	jsonOutput bool
	debug      bool
	noConfirm  bool
)

// errReported marks errors already printed to the user.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "origin-trader",
	Short: "Buy and sell origin platform tokens on BNB Smart Chain",
	Long: `origin-trader trades tokens of the origin launch platform. Tokens on the
bonding curve trade against the token factory; graduated tokens trade on the
swap router, where buys can also go through the mining flow.

Configuration is read from --config, ORIGIN_TRADER_* environment variables and
an optional .env file.

Examples:
  origin-trader quote buy 0xToken 0.5
  origin-trader buy 0xToken 0.5
  origin-trader sell 0xToken 1200 --yes
  origin-trader mine 0xToken 1
  origin-trader slippage set 3
  origin-trader tui 0xToken`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Dotenv file with secrets")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug logging to the console")
}

// app is one initialized trader for the duration of a command.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	runner *bot.Runner
}

// openApp loads configuration and opens every service. Logs go to the file
// only, unless --debug asks for them on the console too.
func openApp(ctx context.Context, tui bool) (*app, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	lcfg := logger.DefaultConfig()
	lcfg.LogFile = cfg.LogFile
	lcfg.Development = debug || cfg.DebugLogging
	lcfg.ConsoleOff = tui || !debug
	log, err := logger.New(lcfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	runner := bot.NewRunner(cfg, log.Logger)
	if err := runner.Initialize(ctx); err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &app{cfg: cfg, log: log, runner: runner}, nil
}

func (a *app) Close() {
	if err := a.runner.Close(); err != nil {
		a.log.Warn("Shutdown finished with errors", zap.Error(err))
	}
	_ = a.log.Sync()
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(os.Stderr))
	s.Suffix = suffix
	if !jsonOutput {
		s.Start()
	}
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", red.Sprint("Error:"), err)
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}

// confirm asks a yes/no question on stdin. --yes and --json skip it.
func confirm(question string) bool {
	if noConfirm || jsonOutput {
		return true
	}
	fmt.Printf("\n%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
