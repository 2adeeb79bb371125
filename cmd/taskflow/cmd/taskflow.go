package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskflow/backend"
	"taskflow/internal/cache"
	"taskflow/internal/client"
	"taskflow/internal/config"
	"taskflow/internal/credentials"
	"taskflow/internal/notification"
	"taskflow/internal/taskstore"
	"taskflow/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string
	ConfigPath   string // Path to config file (for testing)
	CachePath    string // Path to cache file (for testing)
	APIURL       string // API base URL override (for testing)
	Stdin        io.Reader
	Keyring      credentials.Keyring

	// loaded by the root command before any subcommand runs
	app      *config.Config
	closeLog func()
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	return ExecuteContext(context.Background(), args, stdout, stderr, cfg)
}

// ExecuteContext is Execute with a caller-controlled context. Cancelling ctx
// stops long-running commands such as serve.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer, cfg *Config) int {
	if cfg == nil {
		cfg = &Config{}
	}
	rootCmd := NewTaskflow(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if cfg.closeLog != nil {
		cfg.closeLog()
		cfg.closeLog = nil
	}
	if err != nil {
		if containsJSONFlag(args) || jsonMode(cfg) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTaskflow creates the root command with injectable IO
func NewTaskflow(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}

	cmd := &cobra.Command{
		Use:     "taskflow",
		Short:   "A task tracker with an offline-tolerant client",
		Long:    "taskflow serves a task API with semantic search and provides a cached CLI and terminal UI for it.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, stderr, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if isTerminal(stdout) {
				return runTUI(cmd.Context(), cfg, stdout)
			}
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file")
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("api-url", "", "Task API base URL")

	cmd.AddCommand(newServeCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(stdout, cfg))
	cmd.AddCommand(newListCmd(stdout, cfg))
	cmd.AddCommand(newShowCmd(stdout, cfg))
	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newUpdateCmd(stdout, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, cfg))
	cmd.AddCommand(newSearchCmd(stdout, cfg))
	cmd.AddCommand(newCacheCmd(stdout, cfg))
	cmd.AddCommand(newTokenCmd(stdout, cfg))
	cmd.AddCommand(newPingCmd(stdout, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// loadConfig reads the config file, applies flag overrides and sets up logging.
func loadConfig(cmd *cobra.Command, stderr io.Writer, cfg *Config) error {
	if cmd.Name() == "serve" {
		if err := config.LoadDotEnv(""); err != nil {
			return err
		}
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = cfg.ConfigPath
	}
	app, err := config.Load(path)
	if err != nil {
		return err
	}

	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	apiURL, _ := cmd.Flags().GetString("api-url")

	if noPrompt {
		cfg.NoPrompt = true
	}
	if verbose {
		cfg.Verbose = true
	}
	outputFormat := cfg.OutputFormat
	if jsonOutput {
		outputFormat = "json"
	}
	if apiURL == "" {
		apiURL = cfg.APIURL
	}
	app.ApplyFlags(cfg.NoPrompt, outputFormat, apiURL)
	if cfg.CachePath != "" {
		app.Client.CachePath = cfg.CachePath
	}
	if err := app.Validate(); err != nil {
		return configError(err)
	}

	// The TUI owns the terminal, so it only ever logs to a file.
	console := stderr
	if cmd.Name() == "tui" || (cmd.Parent() == nil && isTerminal(cmd.OutOrStdout())) {
		console = io.Discard
	}
	closeLog, err := utils.SetupLogger(console, app.Logging.Level, app.Logging.File)
	if err != nil {
		return err
	}
	cfg.closeLog = closeLog
	utils.SetVerboseMode(cfg.Verbose)

	cfg.app = app
	return nil
}

// configError lists every invalid field as "field: problem".
func configError(err error) error {
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field+": "+fe.Err.Error())
	}
	return utils.WrapWithSuggestion(
		fmt.Errorf("invalid configuration: %s", strings.Join(parts, "; ")),
		"Fix the config file or the TASKFLOW_* environment variables",
	)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func jsonMode(cfg *Config) bool {
	return cfg.app != nil && cfg.app.OutputFormat == "json"
}

// =============================================================================
// Client wiring
// =============================================================================

// newClient builds an API client, using the stored token for the API URL.
func newClient(ctx context.Context, cfg *Config) (*client.Client, error) {
	apiURL := cfg.app.Client.APIURL
	token := newCredentialManager(cfg).Token(ctx, apiURL)
	return client.New(client.Config{
		BaseURL:   apiURL,
		Token:     token,
		Timeout:   cfg.app.GetClientTimeout(),
		UserAgent: "taskflow/" + Version,
	})
}

func newCredentialManager(cfg *Config) *credentials.Manager {
	if cfg.Keyring != nil {
		return credentials.NewManager(credentials.WithKeyring(cfg.Keyring))
	}
	return credentials.NewManager()
}

func newCacheEngine(cfg *Config) *cache.Engine {
	return cache.New(
		cache.NewFileStorage(cfg.app.Client.CachePath),
		cache.WithExpiry(cfg.app.GetCacheTTLDuration()),
		cache.WithLogger(utils.Component("cache")),
	)
}

// newStore wires client, cache and notifications into a task store.
func newStore(ctx context.Context, cfg *Config) (*taskstore.Store, *client.Client, error) {
	c, err := newClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := utils.Component("store")
	notes := notification.NewManager(notification.WithLogger(logger))
	store := taskstore.New(c, newCacheEngine(cfg),
		taskstore.WithNotifications(notes),
		taskstore.WithLogger(logger),
	)
	return store, c, nil
}

// =============================================================================
// Error and output helpers
// =============================================================================

// cliError turns API failures into errors with a suggestion where one helps.
func cliError(err error, cfg *Config) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.IsNetwork():
		reason := apiErr.Message
		if apiErr.Err != nil {
			reason = apiErr.Err.Error()
		}
		return utils.ErrServerUnreachable(cfg.app.Client.APIURL, reason)
	case apiErr.StatusCode == http.StatusUnauthorized:
		return utils.ErrUnauthorized()
	}
	return errors.New(taskstore.ErrorMessage(err))
}

func parseStatusFlag(s string) (backend.TaskStatus, error) {
	status, err := backend.ParseStatus(s)
	if err != nil {
		valid := make([]string, len(backend.AllStatuses))
		for i, st := range backend.AllStatuses {
			valid[i] = string(st)
		}
		return "", utils.ErrInvalidStatus(s, valid)
	}
	return status, nil
}

// errorResponse is the JSON body printed for failed commands.
type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	msg := err.Error()
	var sugg *utils.ErrorWithSuggestion
	if errors.As(err, &sugg) {
		msg = sugg.Err.Error()
	}
	response := errorResponse{
		Error:  msg,
		Code:   1,
		Result: ResultError,
	}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}

func writeJSON(stdout io.Writer, v any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// emitResult prints a result code in no-prompt mode
func emitResult(stdout io.Writer, cfg *Config, code string) {
	if cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, code)
	}
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
