package longtake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/longtake/trip"
)

// EvidenceMode records how a frame was obtained.
type EvidenceMode string

const (
	ModeElement  EvidenceMode = "element"
	ModeFullPage EvidenceMode = "full_page"
	ModeRendered EvidenceMode = "rendered"
)

// Evidence is one frame written to disk.
type Evidence struct {
	Path        string       `json:"path"`
	Mode        EvidenceMode `json:"mode"`
	Size        int          `json:"size"`
	SHA256      string       `json:"sha256"`
	ConsolePath string       `json:"console_path,omitempty"`
	CapturedAt  time.Time    `json:"captured_at"`
}

// Camera writes screenshots for one scenario under
// <evidence dir>/<scenario slug>/.
//
// A camera always tries to leave a picture behind: an element shot falls back
// to the full page, and a page that can't be photographed is rendered as text.
// Only a failure to write the file is reported, as a capture stumble.
type Camera struct {
	page     Page
	resolver *Resolver
	stage    *RenderingStage
	logger   *zap.Logger
	dir      string
}

// NewCamera creates a camera writing into evidenceDir/slug.
func NewCamera(page Page, resolver *Resolver, evidenceDir, slug string, logger *zap.Logger) *Camera {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Camera{
		page:     page,
		resolver: resolver,
		stage:    NewRenderingStage(DefaultRenderConfig()),
		logger:   logger.Named("camera"),
		dir:      filepath.Join(evidenceDir, slug),
	}
}

// Dir returns the scenario's evidence folder.
func (c *Camera) Dir() string {
	return c.dir
}

// Capture writes a frame to relPath inside the scenario folder. A non-nil
// target asks for an element-scoped shot.
func (c *Camera) Capture(ctx context.Context, relPath string, target *LocatorSpec) (Evidence, error) {
	if relPath == "" || !filepath.IsLocal(relPath) {
		return Evidence{}, trip.NewStumble(trip.KindCapture, fmt.Sprintf("evidence path %q escapes the scenario folder", relPath),
			trip.Context{"path": relPath}).WithReason("invalid_path")
	}
	path := filepath.Join(c.dir, relPath)

	data, mode, failures := c.shoot(ctx, target)
	if data == nil {
		frame, err := c.render(ctx, failures)
		if err != nil {
			return Evidence{}, trip.NewStumble(trip.KindCapture, "could not render fallback frame",
				trip.Context{"path": path, "failures": failures}).WithReason("render_failed").WithCause(err)
		}
		data, mode = frame, ModeRendered
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Evidence{}, trip.NewStumble(trip.KindCapture, "could not create evidence folder",
			trip.Context{"path": path}).WithReason("write_failed").WithCause(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Evidence{}, trip.NewStumble(trip.KindCapture, "could not write evidence",
			trip.Context{"path": path}).WithReason("write_failed").WithCause(err)
	}

	sum := sha256.Sum256(data)
	ev := Evidence{
		Path:       path,
		Mode:       mode,
		Size:       len(data),
		SHA256:     hex.EncodeToString(sum[:]),
		CapturedAt: time.Now(),
	}
	ev.ConsolePath = c.writeConsole(path)

	c.logger.Debug("captured", zap.String("path", path), zap.String("mode", string(mode)), zap.Int("bytes", len(data)))
	return ev, nil
}

// shoot tries the element, then the full page. It returns nil data when the
// browser produced nothing, plus a description of each failure.
func (c *Camera) shoot(ctx context.Context, target *LocatorSpec) ([]byte, EvidenceMode, []string) {
	var failures []string

	if target != nil && !target.IsZero() {
		el, err := c.resolver.Resolve(ctx, *target)
		if err == nil {
			data, err := el.Screenshot(ctx)
			if err == nil && len(data) > 0 {
				return data, ModeElement, nil
			}
			if err == nil {
				err = fmt.Errorf("empty element screenshot")
			}
			failures = append(failures, "element: "+err.Error())
		} else {
			failures = append(failures, "element: "+err.Error())
		}
		c.logger.Warn("element capture degraded to full page", zap.Stringer("locator", target), zap.Strings("failures", failures))
	}

	data, err := c.page.Screenshot(ctx)
	if err == nil && len(data) > 0 {
		return data, ModeFullPage, failures
	}
	if err == nil {
		err = fmt.Errorf("empty page screenshot")
	}
	failures = append(failures, "page: "+err.Error())
	c.logger.Warn("page screenshot failed, rendering text frame", zap.Strings("failures", failures))
	return nil, "", failures
}

func (c *Camera) render(ctx context.Context, failures []string) ([]byte, error) {
	var text strings.Builder
	text.WriteString("screenshot unavailable\n")
	for _, f := range failures {
		text.WriteString(f + "\n")
	}
	if loc, err := c.page.Location(ctx); err == nil {
		text.WriteString("url: " + loc + "\n")
	}
	text.WriteString("\n")
	if body, err := c.page.BodyText(ctx); err == nil {
		text.WriteString(body)
	} else {
		text.WriteString("page text unavailable: " + err.Error())
	}

	c.stage.RenderText(text.String())
	return c.stage.Frame()
}

func (c *Camera) writeConsole(path string) string {
	src, ok := c.page.(ConsoleSource)
	if !ok {
		return ""
	}
	lines := src.ConsoleLog()
	if len(lines) == 0 {
		return ""
	}
	consolePath := path + ".console.txt"
	if err := os.WriteFile(consolePath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		c.logger.Warn("could not write console log", zap.String("path", consolePath), zap.Error(err))
		return ""
	}
	return consolePath
}
