package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"taskflow/internal/credentials"
	"taskflow/internal/tui"
	"taskflow/internal/utils"
)

// newTUICmd creates the 'tui' subcommand
func newTUICmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(stdout) {
				return utils.ErrNoInteractiveTerminal("the terminal interface")
			}
			return runTUI(cmd.Context(), cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func runTUI(ctx context.Context, cfg *Config, stdout io.Writer) error {
	store, c, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	p := tea.NewProgram(tui.New(ctx, store),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cfg.Stdin),
		tea.WithOutput(stdout),
	)
	_, err = p.Run()
	return err
}

// cacheStatusResponse is the JSON body of 'taskflow cache status'.
type cacheStatusResponse struct {
	Path       string `json:"path"`
	Present    bool   `json:"present"`
	Valid      bool   `json:"valid"`
	Corrupt    bool   `json:"corrupt"`
	CapturedAt string `json:"capturedAt,omitempty"`
	Age        string `json:"age,omitempty"`
	ExpiresIn  string `json:"expiresIn,omitempty"`
	Expiry     string `json:"expiry"`
	TaskCount  int    `json:"taskCount"`
	Result     string `json:"result"`
}

// newCacheCmd creates the 'cache' subcommand
func newCacheCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local task cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the age and validity of the cached task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doCacheStatus(cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the cached task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			newCacheEngine(cfg).Clear()
			if jsonMode(cfg) {
				return writeJSON(stdout, map[string]string{"action": "clear", "result": ResultActionCompleted})
			}
			_, _ = fmt.Fprintln(stdout, "Cache cleared")
			emitResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return cacheCmd
}

func doCacheStatus(cfg *Config, stdout io.Writer) error {
	info := newCacheEngine(cfg).Info()
	resp := cacheStatusResponse{
		Path:      cfg.app.Client.CachePath,
		Present:   info.Present,
		Valid:     info.Valid,
		Corrupt:   info.Corrupt,
		Expiry:    info.Expiry.String(),
		TaskCount: info.TaskCount,
		Result:    ResultInfoOnly,
	}
	if !info.CapturedAt.IsZero() {
		resp.CapturedAt = info.CapturedAt.Format(time.RFC3339)
		resp.Age = info.Age.Round(time.Second).String()
		resp.ExpiresIn = info.ExpiresIn.Round(time.Second).String()
	}

	if jsonMode(cfg) {
		return writeJSON(stdout, resp)
	}

	_, _ = fmt.Fprintf(stdout, "Path:       %s\n", resp.Path)
	switch {
	case info.Corrupt:
		_, _ = fmt.Fprintln(stdout, "State:      corrupt (will be discarded on next read)")
	case !info.Present:
		_, _ = fmt.Fprintln(stdout, "State:      empty")
	case info.Valid:
		_, _ = fmt.Fprintln(stdout, "State:      valid")
	default:
		_, _ = fmt.Fprintln(stdout, "State:      expired")
	}
	if resp.CapturedAt != "" {
		_, _ = fmt.Fprintf(stdout, "Captured:   %s (%s ago)\n", resp.CapturedAt, resp.Age)
		_, _ = fmt.Fprintf(stdout, "Tasks:      %d\n", resp.TaskCount)
		if info.Valid {
			_, _ = fmt.Fprintf(stdout, "Expires in: %s\n", resp.ExpiresIn)
		}
	}
	_, _ = fmt.Fprintf(stdout, "Expiry:     %s\n", resp.Expiry)
	emitResult(stdout, cfg, ResultInfoOnly)
	return nil
}

// pingResponse is the JSON body of 'taskflow ping'.
type pingResponse struct {
	Server   string `json:"server"`
	Status   string `json:"status"`
	Storage  string `json:"storage,omitempty"`
	Embedder string `json:"embedder,omitempty"`
	Latency  string `json:"latency"`
	Result   string `json:"result"`
}

// newPingCmd creates the 'ping' subcommand
func newPingCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the task API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPing(cmd.Context(), cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doPing(ctx context.Context, cfg *Config, stdout io.Writer) error {
	c, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	start := time.Now()
	health, err := c.Health(ctx)
	if err != nil {
		return cliError(err, cfg)
	}
	resp := pingResponse{
		Server:  c.BaseURL(),
		Latency: time.Since(start).Round(time.Millisecond).String(),
		Result:  ResultInfoOnly,
	}
	resp.Status, _ = health["status"].(string)
	resp.Storage, _ = health["storage"].(string)
	resp.Embedder, _ = health["embedder"].(string)

	if jsonMode(cfg) {
		return writeJSON(stdout, resp)
	}
	_, _ = fmt.Fprintf(stdout, "%s: %s (%s)\n", resp.Server, resp.Status, resp.Latency)
	if resp.Storage != "" {
		_, _ = fmt.Fprintf(stdout, "Storage:  %s\n", resp.Storage)
	}
	if resp.Embedder != "" {
		_, _ = fmt.Fprintf(stdout, "Embedder: %s\n", resp.Embedder)
	}
	emitResult(stdout, cfg, ResultInfoOnly)
	return nil
}

// newTokenCmd creates the 'token' subcommand for API token management
func newTokenCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the API token",
		Long:  "Store, inspect, and remove the API token used for the configured server. Tokens live in the system keyring; " + credentials.EnvToken + " is used as a fallback.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	handler := func() *credentials.CLIHandler {
		return credentials.NewCLIHandler(newCredentialManager(cfg), cfg.Stdin, stdout)
	}
	server := func(cmd *cobra.Command) string {
		if s, _ := cmd.Flags().GetString("server"); s != "" {
			return s
		}
		return cfg.app.Client.APIURL
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the API token in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handler().Set(cmd.Context(), server(cmd))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show where the API token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handler().Get(cmd.Context(), server(cmd), jsonMode(cfg))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the API token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handler().Delete(cmd.Context(), server(cmd))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	for _, c := range []*cobra.Command{setCmd, getCmd, deleteCmd} {
		c.Flags().String("server", "", "Server URL the token belongs to (default: client.api_url)")
		tokenCmd.AddCommand(c)
	}
	return tokenCmd
}

// newVersionCmd creates the 'version' subcommand
func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No config is needed to print the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "taskflow %s\n", Version)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
