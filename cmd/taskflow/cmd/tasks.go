package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"taskflow/backend"
	"taskflow/internal/cache"
	"taskflow/internal/client"
	"taskflow/internal/taskstore"
	"taskflow/internal/utils"
	"taskflow/internal/views"
)

// listResponse is the JSON body of 'taskflow list'.
type listResponse struct {
	Tasks   []backend.Task `json:"tasks"`
	Count   int            `json:"count"`
	Source  cache.Status   `json:"source"`
	Warning string         `json:"warning,omitempty"`
	Result  string         `json:"result"`
}

// actionResponse is the JSON body of add, update and delete.
type actionResponse struct {
	Action string       `json:"action"`
	Task   backend.Task `json:"task"`
	Result string       `json:"result"`
}

type showResponse struct {
	Task   backend.Task `json:"task"`
	Result string       `json:"result"`
}

type searchResponse struct {
	Query  string               `json:"query"`
	Hits   []backend.ScoredTask `json:"hits"`
	Count  int                  `json:"count"`
	Result string               `json:"result"`
}

// newListCmd creates the 'list' subcommand
func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long:  "List tasks from the local cache when it is fresh, otherwise from the server. Falls back to the cache when the server is unreachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			remote, _ := cmd.Flags().GetBool("remote")
			statusStr, _ := cmd.Flags().GetString("status")
			sortStr, _ := cmd.Flags().GetString("sort")
			search, _ := cmd.Flags().GetString("search")

			status, err := views.ParseStatusFilter(statusStr)
			if err != nil {
				return utils.WrapWithSuggestion(err, "Valid filters: all, todo, in-progress, done")
			}
			sortKey, err := views.ParseSortKey(sortStr)
			if err != nil {
				return err
			}

			mode := loadStandard
			switch {
			case refresh:
				mode = loadRefresh
			case remote:
				mode = loadForced
			}
			return doList(cmd.Context(), cfg, stdout, mode, views.Options{Status: status, Sort: sortKey, Search: search})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("refresh", false, "Discard the cache and fetch from the server")
	cmd.Flags().Bool("remote", false, "Fetch from the server even if the cache is fresh, falling back to the cache on failure")
	cmd.Flags().StringP("status", "s", "", "Filter by status (all, todo, in-progress, done)")
	cmd.Flags().String("sort", "", "Sort order (newest, oldest, title)")
	cmd.Flags().String("search", "", "Only show tasks whose title or description contains this text")
	return cmd
}

// loadMode selects how 'list' obtains the collection.
type loadMode int

const (
	loadStandard loadMode = iota
	loadForced
	loadRefresh
)

func doList(ctx context.Context, cfg *Config, stdout io.Writer, mode loadMode, opts views.Options) error {
	store, c, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	store.SetStatusFilter(opts.Status)
	store.SetSort(opts.Sort)
	store.SetSearch(opts.Search)

	switch mode {
	case loadRefresh:
		err = store.Refresh(ctx)
	case loadForced:
		err = store.Load(ctx, true)
	default:
		err = store.Load(ctx, false)
	}
	if err != nil {
		return cliError(err, cfg)
	}

	tasks := store.View()
	if jsonMode(cfg) {
		if tasks == nil {
			tasks = []backend.Task{}
		}
		return writeJSON(stdout, listResponse{
			Tasks:   tasks,
			Count:   len(tasks),
			Source:  store.Status(),
			Warning: store.Warning(),
			Result:  ResultInfoOnly,
		})
	}

	_, _ = fmt.Fprintf(stdout, "Source: %s\n", store.Status())
	if w := store.Warning(); w != "" {
		_, _ = fmt.Fprintf(stdout, "Warning: %s\n", w)
	}
	views.NewRenderer(nil, stdout).Render(tasks)
	emitResult(stdout, cfg, ResultInfoOnly)
	return nil
}

// newShowCmd creates the 'show' subcommand
func newShowCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseTaskID(args[0])
			if err != nil {
				return utils.ErrInvalidTaskID(args[0])
			}
			return doShow(cmd.Context(), cfg, stdout, id)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doShow(ctx context.Context, cfg *Config, stdout io.Writer, id int64) error {
	store, c, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	if err := store.Load(ctx, false); err != nil {
		return cliError(err, cfg)
	}

	task, ok := store.Find(id)
	if !ok {
		// The cached collection may predate the task.
		fetched, err := c.GetTask(ctx, id)
		if err != nil {
			if client.IsNotFound(err) {
				return utils.ErrTaskNotFound(id)
			}
			return cliError(err, cfg)
		}
		task = *fetched
	}

	if jsonMode(cfg) {
		return writeJSON(stdout, showResponse{Task: task, Result: ResultInfoOnly})
	}
	views.NewRenderer(nil, stdout).RenderDetail(&task)
	emitResult(stdout, cfg, ResultInfoOnly)
	return nil
}

// newAddCmd creates the 'add' subcommand
func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			statusStr, _ := cmd.Flags().GetString("status")

			req := backend.CreateTaskRequest{Title: joinArgs(args), Description: desc}
			if statusStr != "" {
				status, err := parseStatusFlag(statusStr)
				if err != nil {
					return err
				}
				req.Status = status
			}
			return mutate(cmd.Context(), cfg, stdout, "add", func(ctx context.Context, s *taskstore.Store) (*backend.Task, error) {
				return s.Create(ctx, req)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().StringP("status", "s", "", "Initial status (todo, in-progress, done)")
	return cmd
}

// newUpdateCmd creates the 'update' subcommand
func newUpdateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change a task's title, description or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseTaskID(args[0])
			if err != nil {
				return utils.ErrInvalidTaskID(args[0])
			}

			var patch backend.TaskPatch
			if cmd.Flags().Changed("title") {
				title, _ := cmd.Flags().GetString("title")
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				desc, _ := cmd.Flags().GetString("description")
				patch.Description = &desc
			}
			if cmd.Flags().Changed("status") {
				statusStr, _ := cmd.Flags().GetString("status")
				status, err := parseStatusFlag(statusStr)
				if err != nil {
					return err
				}
				patch.Status = &status
			}
			if patch.Empty() {
				return utils.WrapWithSuggestion(fmt.Errorf("nothing to update"), "Pass at least one of --title, --description or --status")
			}

			return mutate(cmd.Context(), cfg, stdout, "update", func(ctx context.Context, s *taskstore.Store) (*backend.Task, error) {
				return s.Update(ctx, id, patch)
			}, id)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().StringP("description", "d", "", "New description")
	cmd.Flags().StringP("status", "s", "", "New status (todo, in-progress, done)")
	return cmd
}

// newDeleteCmd creates the 'delete' subcommand
func newDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseTaskID(args[0])
			if err != nil {
				return utils.ErrInvalidTaskID(args[0])
			}

			if !cfg.NoPrompt && !jsonMode(cfg) {
				if !utils.PromptYesNoWithReader(fmt.Sprintf("Delete task %d?", id), cfg.Stdin, stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			return mutate(cmd.Context(), cfg, stdout, "delete", func(ctx context.Context, s *taskstore.Store) (*backend.Task, error) {
				return s.Delete(ctx, id)
			}, id)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// mutate loads the collection so the cache stays complete, then runs op.
// ids names the task the operation targets, for not-found reporting.
func mutate(ctx context.Context, cfg *Config, stdout io.Writer, action string, op func(context.Context, *taskstore.Store) (*backend.Task, error), ids ...int64) error {
	store, c, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	if err := store.Load(ctx, false); err != nil {
		return cliError(err, cfg)
	}
	task, err := op(ctx, store)
	if err != nil {
		if client.IsNotFound(err) && len(ids) > 0 {
			return utils.ErrTaskNotFound(ids[0])
		}
		return cliError(err, cfg)
	}

	if jsonMode(cfg) {
		return writeJSON(stdout, actionResponse{Action: action, Task: *task, Result: ResultActionCompleted})
	}

	switch action {
	case "add":
		_, _ = fmt.Fprintf(stdout, "Created task %d: %s\n", task.ID, task.Title)
	case "update":
		_, _ = fmt.Fprintf(stdout, "Updated task %d: %s [%s]\n", task.ID, task.Title, task.Status)
	case "delete":
		_, _ = fmt.Fprintf(stdout, "Deleted task %d: %s\n", task.ID, task.Title)
	}
	emitResult(stdout, cfg, ResultActionCompleted)
	return nil
}

// newSearchCmd creates the 'search' subcommand
func newSearchCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search over tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return doSearch(cmd.Context(), cfg, stdout, joinArgs(args), limit)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().IntP("limit", "n", 10, "Maximum number of results")
	return cmd
}

func doSearch(ctx context.Context, cfg *Config, stdout io.Writer, query string, limit int) error {
	store, c, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	hits, err := store.Search(ctx, query, limit)
	if err != nil {
		return cliError(err, cfg)
	}

	if jsonMode(cfg) {
		if hits == nil {
			hits = []backend.ScoredTask{}
		}
		return writeJSON(stdout, searchResponse{Query: query, Hits: hits, Count: len(hits), Result: ResultInfoOnly})
	}
	views.NewRenderer(nil, stdout).RenderScored(hits)
	emitResult(stdout, cfg, ResultInfoOnly)
	return nil
}
