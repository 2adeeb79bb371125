package taskstore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/backend"
	"taskflow/internal/testutil"
)

// =============================================================================
// CLI Tests
// These run the real command tree against an in-process API server and check
// how list, show, add, update, delete and search use the local cache.
// =============================================================================

func TestCLIListLoadsFromRemoteThenCache(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Review PR", "", backend.StatusTodo)

	out := cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-remote")
	testutil.AssertContains(t, out, "Review PR")
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)

	// A task added behind the cache's back stays invisible while the cache is fresh.
	cli.SeedTask("Hidden", "", backend.StatusTodo)
	out = cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-cache")
	testutil.AssertContains(t, out, "Review PR")
	testutil.AssertNotContains(t, out, "Hidden")
}

func TestCLIListExpiredCacheRefetches(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("First", "", backend.StatusTodo)
	cli.MustExecute("list")

	cli.SeedTask("Second", "", backend.StatusTodo)
	cli.AgeCache(6 * time.Minute)

	out := cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-remote")
	testutil.AssertContains(t, out, "Second")
}

func TestCLIListRemoteFallsBackToCache(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Offline task", "", backend.StatusTodo)
	cli.MustExecute("list")

	cli.StopServer()
	out := cli.MustExecute("list", "--remote")
	testutil.AssertContains(t, out, "Source: fallback-to-cache")
	testutil.AssertContains(t, out, "Warning: Remote data unavailable, showing cached tasks")
	testutil.AssertContains(t, out, "Offline task")
}

func TestCLIListRemoteWithoutCacheFails(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.StopServer()

	stdout, stderr := cli.ExecuteAndFail("list", "--remote")
	testutil.AssertContains(t, stderr, "is unreachable")
	testutil.AssertResultCode(t, stdout, testutil.ResultError)
}

func TestCLIRefreshWithServerDownClearsCache(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Gone after refresh", "", backend.StatusTodo)
	cli.MustExecute("list")

	cli.StopServer()
	_, stderr := cli.ExecuteAndFail("list", "--refresh")
	testutil.AssertContains(t, stderr, "is unreachable")

	out := cli.MustExecute("cache", "status")
	testutil.AssertContains(t, out, "State:      empty")
}

func TestCLIListJSON(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("One", "", backend.StatusTodo)
	cli.SeedTask("Two", "", backend.StatusDone)

	out := cli.MustExecute("list", "--json")

	var resp struct {
		Tasks   []backend.Task `json:"tasks"`
		Count   int            `json:"count"`
		Source  string         `json:"source"`
		Warning string         `json:"warning"`
		Result  string         `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Tasks, 2)
	assert.Equal(t, "loaded-from-remote", resp.Source)
	assert.Empty(t, resp.Warning)
	assert.Equal(t, testutil.ResultInfoOnly, resp.Result)
}

func TestCLIListEmpty(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("list")
	testutil.AssertContains(t, out, "No tasks")

	jsonOut := cli.MustExecute("list", "--json")
	testutil.AssertContains(t, jsonOut, `"tasks":[]`)
}

func TestCLIListFiltersAndSorts(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Banana", "", backend.StatusTodo)
	cli.SeedTask("apple", "", backend.StatusTodo)
	cli.SeedTask("Cherry", "", backend.StatusDone)

	out := cli.MustExecute("list", "--status", "todo", "--sort", "title")
	testutil.AssertNotContains(t, out, "Cherry")
	apple, banana := strings.Index(out, "apple"), strings.Index(out, "Banana")
	require.NotEqual(t, -1, apple, out)
	require.NotEqual(t, -1, banana, out)
	assert.Less(t, apple, banana, "title sort is case-insensitive")

	out = cli.MustExecute("list", "--search", "err")
	testutil.AssertContains(t, out, "Cherry")
	testutil.AssertNotContains(t, out, "Banana")
}

func TestCLIListRejectsUnknownFilter(t *testing.T) {
	cli := testutil.NewCLITest(t)

	_, stderr := cli.ExecuteAndFail("list", "--status", "blocked")
	testutil.AssertContains(t, stderr, "Valid filters")
}

func TestCLICorruptCacheIsRefetched(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Survivor", "", backend.StatusTodo)

	require.NoError(t, os.MkdirAll(filepath.Dir(cli.CachePath()), 0755))
	require.NoError(t, os.WriteFile(cli.CachePath(), []byte("{not json"), 0644))

	out := cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-remote")
	testutil.AssertContains(t, out, "Survivor")
}

// --- Mutations ---

func TestCLIAddUpdatesCacheWithoutRefetch(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Existing", "", backend.StatusTodo)
	cli.MustExecute("list")

	out := cli.MustExecute("add", "Write", "docs", "-d", "for the API")
	testutil.AssertContains(t, out, "Created task 2: Write docs")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	// Seeded after the cache write, so only a refetch would show it.
	cli.SeedTask("Server only", "", backend.StatusTodo)

	out = cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-cache")
	testutil.AssertContains(t, out, "Existing")
	testutil.AssertContains(t, out, "Write docs")
	testutil.AssertNotContains(t, out, "Server only")
}

func TestCLIAddWithStatusAndJSON(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("add", "Ship it", "-s", "in progress", "--json")

	var resp struct {
		Action string       `json:"action"`
		Task   backend.Task `json:"task"`
		Result string       `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "add", resp.Action)
	assert.Equal(t, "Ship it", resp.Task.Title)
	assert.Equal(t, backend.StatusInProgress, resp.Task.Status)
	assert.Equal(t, testutil.ResultActionCompleted, resp.Result)
}

func TestCLIAddBlankTitleShowsValidationError(t *testing.T) {
	cli := testutil.NewCLITest(t)

	_, stderr := cli.ExecuteAndFail("add", "   ")
	testutil.AssertContains(t, stderr, "Validation failed")
}

func TestCLIUpdateAndShow(t *testing.T) {
	cli := testutil.NewCLITest(t)
	task := cli.SeedTask("Draft report", "first pass", backend.StatusTodo)

	out := cli.MustExecute("update", "1", "--status", "done", "--title", "Final report")
	testutil.AssertContains(t, out, "Updated task 1: Final report [done]")

	out = cli.MustExecute("show", "1")
	testutil.AssertContains(t, out, "Title:       Final report")
	testutil.AssertContains(t, out, "Status:      done")
	testutil.AssertContains(t, out, "Description: first pass")

	stored, err := cli.Repo().Get(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final report", stored.Title)
}

func TestCLIUpdateMissingTask(t *testing.T) {
	cli := testutil.NewCLITest(t)

	_, stderr := cli.ExecuteAndFail("update", "42", "--status", "done")
	testutil.AssertContains(t, stderr, "task not found: 42")
}

func TestCLIShowFetchesTaskMissingFromCache(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Cached", "", backend.StatusTodo)
	cli.MustExecute("list")
	cli.SeedTask("Newer", "", backend.StatusTodo)

	out := cli.MustExecute("show", "2")
	testutil.AssertContains(t, out, "Title:       Newer")

	_, stderr := cli.ExecuteAndFail("show", "99")
	testutil.AssertContains(t, stderr, "task not found: 99")
}

func TestCLIDelete(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Keep", "", backend.StatusTodo)
	cli.SeedTask("Remove", "", backend.StatusTodo)

	out := cli.MustExecute("delete", "2")
	testutil.AssertContains(t, out, "Deleted task 2: Remove")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	out = cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-cache")
	testutil.AssertNotContains(t, out, "Remove")

	_, stderr := cli.ExecuteAndFail("delete", "2")
	testutil.AssertContains(t, stderr, "task not found: 2")
}

func TestCLIDeletePromptDeclined(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Precious", "", backend.StatusTodo)
	cli.Config().NoPrompt = false
	cli.SetStdin("n\n")

	out := cli.MustExecute("delete", "1")
	testutil.AssertContains(t, out, "Cancelled")

	tasks, err := cli.Repo().List(t.Context())
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCLIDeletePromptAccepted(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Disposable", "", backend.StatusTodo)
	cli.Config().NoPrompt = false
	cli.SetStdin("y\n")

	out := cli.MustExecute("delete", "1")
	testutil.AssertContains(t, out, "Deleted task 1: Disposable")
}

func TestCLIMutationWithServerDownFails(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Cached", "", backend.StatusTodo)
	cli.MustExecute("list")
	cli.StopServer()

	stdout, stderr := cli.ExecuteAndFail("add", "Never stored")
	testutil.AssertContains(t, stderr, "is unreachable")
	testutil.AssertResultCode(t, stdout, testutil.ResultError)

	// The cache still holds the collection from before the failure.
	out := cli.MustExecute("list")
	testutil.AssertContains(t, out, "Source: loaded-from-cache")
	testutil.AssertNotContains(t, out, "Never stored")
}

// --- Search ---

func TestCLISearchRanksBySimilarity(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.MustExecute("add", "buy milk", "-d", "from the corner shop")
	cli.MustExecute("add", "write quarterly report")

	out := cli.MustExecute("search", "--json", "buy", "milk")

	var resp struct {
		Query string               `json:"query"`
		Hits  []backend.ScoredTask `json:"hits"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "buy milk", resp.Query)
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, "buy milk", resp.Hits[0].Title)
	for _, h := range resp.Hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
	}

	text := cli.MustExecute("search", "-n", "1", "milk")
	testutil.AssertContains(t, text, "%")
	testutil.AssertContains(t, text, "buy milk")
	testutil.AssertNotContains(t, text, "quarterly")
}

func TestCLISearchRejectsBadLimit(t *testing.T) {
	cli := testutil.NewCLITest(t)

	_, stderr := cli.ExecuteAndFail("search", "-n", "0", "milk")
	testutil.AssertContains(t, stderr, "--limit must be positive")
}

// --- Cache and token commands ---

func TestCLICacheStatusAndClear(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Counted", "", backend.StatusTodo)

	out := cli.MustExecute("cache", "status")
	testutil.AssertContains(t, out, "State:      empty")

	cli.MustExecute("list")
	out = cli.MustExecute("cache", "status")
	testutil.AssertContains(t, out, "State:      valid")
	testutil.AssertContains(t, out, "Tasks:      1")
	testutil.AssertContains(t, out, "Expiry:     5m0s")

	cli.AgeCache(10 * time.Minute)
	out = cli.MustExecute("cache", "status")
	testutil.AssertContains(t, out, "State:      expired")

	out = cli.MustExecute("cache", "clear")
	testutil.AssertContains(t, out, "Cache cleared")
	_, err := os.Stat(cli.CachePath())
	assert.True(t, os.IsNotExist(err))
}

func TestCLICacheStatusJSON(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.SeedTask("Counted", "", backend.StatusTodo)
	cli.MustExecute("list")

	out := cli.MustExecute("cache", "status", "--json")

	var resp struct {
		Present   bool   `json:"present"`
		Valid     bool   `json:"valid"`
		TaskCount int    `json:"taskCount"`
		Path      string `json:"path"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.True(t, resp.Present)
	assert.True(t, resp.Valid)
	assert.Equal(t, 1, resp.TaskCount)
	assert.Equal(t, cli.CachePath(), resp.Path)
}

func TestCLITokenLifecycle(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("token", "get")
	testutil.AssertContains(t, out, "No token found for "+cli.ServerURL())

	cli.SetStdin("s3cret\n")
	out = cli.MustExecute("token", "set")
	testutil.AssertContains(t, out, "Token stored in system keyring")

	out = cli.MustExecute("token", "get")
	testutil.AssertContains(t, out, "Source: keyring")
	testutil.AssertNotContains(t, out, "s3cret")

	// Requests still succeed with the token attached.
	cli.MustExecute("list")

	out = cli.MustExecute("token", "delete")
	testutil.AssertContains(t, out, "Token removed from system keyring")
	out = cli.MustExecute("token", "get")
	testutil.AssertContains(t, out, "No token found")
}

func TestCLIPingReportsServer(t *testing.T) {
	cli := testutil.NewCLITest(t)

	out := cli.MustExecute("ping")
	testutil.AssertContains(t, out, cli.ServerURL()+": ok")
	testutil.AssertContains(t, out, "Storage:  memory")
	testutil.AssertContains(t, out, "Embedder: hash")
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)

	out = cli.MustExecute("ping", "--json")
	var resp struct {
		Server  string `json:"server"`
		Status  string `json:"status"`
		Storage string `json:"storage"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, cli.ServerURL(), resp.Server)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Storage)
}

func TestCLIPingServerDown(t *testing.T) {
	cli := testutil.NewCLITest(t)
	cli.StopServer()

	_, stderr := cli.ExecuteAndFail("ping")
	testutil.AssertContains(t, stderr, "is unreachable")
}
