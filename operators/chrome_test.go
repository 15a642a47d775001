package operators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/longtake"
)

type stubElement string

func (s stubElement) Handle() string { return string(s) }
func (stubElement) Text(context.Context) (string, error) { return "", nil }
func (stubElement) Visible(context.Context) (bool, error) { return true, nil }
func (stubElement) Click(context.Context) error { return nil }
func (stubElement) Screenshot(context.Context) ([]byte, error) { return nil, nil }

func TestQueryScript(t *testing.T) {
	script, err := queryScript(longtake.Scope{}, longtake.Match{Role: "button", Name: `Say "hi"`})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(script, "((function (q) {"))

	arg := script[strings.LastIndex(script, ")(")+2 : len(script)-1]
	var req queryRequest
	require.NoError(t, json.Unmarshal([]byte(arg), &req))
	assert.Equal(t, "button", req.Role)
	assert.Equal(t, `Say "hi"`, req.Name)
	assert.Empty(t, req.Anchor)

	scoped, err := queryScript(longtake.Scope{Anchor: stubElement("lt7"), Axis: longtake.AxisSibling}, longtake.Match{CSS: ".value"})
	require.NoError(t, err)
	assert.Contains(t, scoped, `"anchor":"lt7"`)
	assert.Contains(t, scoped, `"axis":"beside"`)
}

const fixtureApp = `<!doctype html>
<html><head><title>Rock Paper Scissors</title></head>
<body>
  <h1>Welcome</h1>
  <div class="score"><span>Your Score:</span> <span class="value">120</span></div>
  <button id="start">Start Game</button>
  <div id="status"></div>
  <script>
    document.getElementById("start").addEventListener("click", () => {
      const status = document.getElementById("status");
      status.innerHTML = "<p>Searching for opponent...</p>";
      setTimeout(() => { status.innerHTML = '<section aria-label="Game board">Opponent found!</section>'; }, 300);
      console.log("matchmaking started");
    });
  </script>
</body></html>`

// TestChromePage_MatchmakingFlow needs a local Chrome; set LONGTAKE_CHROME_TESTS=1 to run it.
func TestChromePage_MatchmakingFlow(t *testing.T) {
	if os.Getenv("LONGTAKE_CHROME_TESTS") == "" {
		t.Skip("LONGTAKE_CHROME_TESTS not set")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixtureApp))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger := zaptest.NewLogger(t)
	launcher, err := NewLauncher(ctx, LaunchConfig{Headless: true, Width: 1024, Height: 768}, logger)
	require.NoError(t, err)
	defer launcher.Close()

	config := longtake.DefaultDirectorConfig()
	config.BaseURL = srv.URL
	config.EvidenceDir = t.TempDir()
	config.Timeout = 5 * time.Second

	sc := longtake.NewScenario("matchmaking",
		longtake.Navigate{URL: "/"},
		longtake.AssertVisible{Target: longtake.ByRole("heading", "Welcome"), Text: "Welcome"},
		longtake.AssertVisible{Target: longtake.ByCSS(".value").Beside(longtake.ByText("Your Score:")), Text: "120"},
		longtake.AssertVisible{Target: longtake.ByContains("Your\n  Score:")},
		longtake.Click{Target: longtake.ByRole("button", "Start Game")},
		longtake.WaitFor{Condition: longtake.ElementVisible(longtake.ByText("Searching for opponent..."))},
		longtake.WaitFor{Condition: longtake.ElementVisible(longtake.ByRole("region", "Game board").Or(longtake.ByText("Opponent found!")))},
		longtake.Screenshot{Path: "start.png", Target: ptr(longtake.ByRole("button", "Start Game"))},
	)

	results := longtake.NewEnsemble(launcher, config).WithLogger(logger).Run(ctx, []longtake.Scenario{sc})
	require.Len(t, results, 1)
	result := results[0]
	require.True(t, result.Success, result.ErrorMessage)
	require.NotNil(t, result.Evidence)
	assert.Equal(t, longtake.ModeFullPage, result.Evidence.Mode)
	assert.NotEmpty(t, result.Evidence.ConsolePath)
}

func ptr[T any](v T) *T { return &v }
