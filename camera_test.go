package longtake

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/longtake/trip"
)

func newTestCamera(t *testing.T, page Page, dir string) *Camera {
	logger := zaptest.NewLogger(t)
	return NewCamera(page, NewResolver(page, logger), dir, "button-styles", logger)
}

func TestCamera_FullPage(t *testing.T) {
	dir := t.TempDir()
	page := newFakePage()
	page.url = "http://game.test/"
	cam := newTestCamera(t, page, dir)

	ev, err := cam.Capture(context.Background(), "home.png", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "button-styles", "home.png"), ev.Path)
	assert.Equal(t, ModeFullPage, ev.Mode)
	assert.Len(t, ev.SHA256, 64)

	data, err := os.ReadFile(ev.Path)
	require.NoError(t, err)
	assert.Equal(t, "page:http://game.test/", string(data))
	assert.Equal(t, len(data), ev.Size)
}

func TestCamera_ElementScoped(t *testing.T) {
	dir := t.TempDir()
	page := newFakePage(node("rock", "button", "Rock", "Rock"))
	cam := newTestCamera(t, page, dir)

	target := ByRole("button", "Rock")
	ev, err := cam.Capture(context.Background(), "buttons/rock.png", &target)
	require.NoError(t, err)
	assert.Equal(t, ModeElement, ev.Mode)

	data, err := os.ReadFile(ev.Path)
	require.NoError(t, err)
	assert.Equal(t, "element:rock", string(data))
}

func TestCamera_ElementDegradesToFullPage(t *testing.T) {
	page := newFakePage()
	cam := newTestCamera(t, page, t.TempDir())

	target := ByRole("button", "Paper")
	ev, err := cam.Capture(context.Background(), "paper.png", &target)
	require.NoError(t, err)
	assert.Equal(t, ModeFullPage, ev.Mode)
}

func TestCamera_RenderedFallback(t *testing.T) {
	page := newFakePage(node("score", "", "", "Your Score: 120"))
	page.shotErr = errors.New("Page.captureScreenshot: target closed")
	cam := newTestCamera(t, page, t.TempDir())

	ev, err := cam.Capture(context.Background(), "final.png", nil)
	require.NoError(t, err)
	assert.Equal(t, ModeRendered, ev.Mode)

	data, err := os.ReadFile(ev.Path)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err, "fallback frame is a real PNG")
}

func TestCamera_ConsoleSidecar(t *testing.T) {
	page := newFakePage()
	page.console = []string{"error: Uncaught TypeError: x is undefined"}
	cam := newTestCamera(t, page, t.TempDir())

	ev, err := cam.Capture(context.Background(), "final.png", nil)
	require.NoError(t, err)
	require.NotEmpty(t, ev.ConsolePath)

	data, err := os.ReadFile(ev.ConsolePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Uncaught TypeError")
}

func TestCamera_WriteFailureIsStumble(t *testing.T) {
	dir := t.TempDir()
	// A file where the scenario folder should be makes every write fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "button-styles"), []byte("x"), 0o644))
	cam := newTestCamera(t, newFakePage(), dir)

	_, err := cam.Capture(context.Background(), "final.png", nil)
	require.Error(t, err)
	tr, ok := trip.As(err)
	require.True(t, ok)
	assert.Equal(t, trip.KindCapture, tr.Kind)
	assert.True(t, tr.CanRecover())
}

func TestCamera_RejectsEscapingPath(t *testing.T) {
	cam := newTestCamera(t, newFakePage(), t.TempDir())

	_, err := cam.Capture(context.Background(), "../outside.png", nil)
	assert.Equal(t, trip.KindCapture, trip.KindOf(err))
}

func TestRenderingStage_WrapsAndClips(t *testing.T) {
	stage := NewRenderingStage(RenderConfig{Columns: 4, Rows: 3})
	stage.RenderText("abcdefgh\nij\nkl\nmn")

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, stage.Lines())

	frame, err := stage.Frame()
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, 4*7+14, img.Bounds().Dx())
}
