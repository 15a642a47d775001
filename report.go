package longtake

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed html_templates/dashboard.html
var dashboardTemplate string

//go:embed html_templates/test_report.html
var testReportTemplate string

// ReportTimestampLayout names the per-run report folders:
// <report dir>/<scenario slug>/<timestamp>/index.html.
const ReportTimestampLayout = "20060102_150405"

// ReportType tags the metadata block of run reports.
const ReportType = "longtake-run"

// Report is everything rendered into one run's HTML page.
type Report struct {
	Scenario     string
	RunID        string
	Tags         []string
	Timestamp    string
	Duration     time.Duration
	Success      bool
	Final        Phase
	PhaseTrace   string
	ErrorMessage string
	TripReport   string
	Steps        []ReportStep
	Frames       []ReportFrame
	Console      string
	Metadata     ReportMetadata
}

// ReportStep is one row of the step table.
type ReportStep struct {
	Number      int
	Instruction string
	Kind        string
	Outcome     Outcome
	Reason      string
	Attempts    int
	Duration    time.Duration
	Error       string
}

// Failed reports whether the step ended in anything but success or skip.
func (s ReportStep) Failed() bool {
	return s.Outcome != OutcomeSuccess && s.Outcome != OutcomeSkipped
}

// ReportFrame is a screenshot embedded as a data URL.
type ReportFrame struct {
	Label   string
	Path    string
	Mode    EvidenceMode
	SHA256  string
	DataURL template.URL
}

// ReportMetadata is embedded as JSON so the dashboard can read a report
// without parsing its markup.
type ReportMetadata struct {
	Scenario   string `json:"scenario"`
	RunID      string `json:"runId"`
	Duration   string `json:"duration"`
	FrameCount int    `json:"frameCount"`
	Timestamp  string `json:"timestamp"`
	Success    bool   `json:"success"`
	Final      string `json:"final"`
	ReportType string `json:"reportType"`
}

// JSON returns the metadata for the report's script block.
func (m ReportMetadata) JSON() template.JS {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return template.JS(data)
}

// ReportFromRun assembles a report from a run result, reading its frames
// from disk. Frames that can no longer be read are listed without a picture.
func ReportFromRun(r *RunResult) Report {
	report := Report{
		Scenario:     r.Scenario,
		RunID:        r.RunID,
		Tags:         r.Tags,
		Timestamp:    r.Started.Format(ReportTimestampLayout),
		Duration:     r.Duration,
		Success:      r.Success,
		Final:        r.Final,
		PhaseTrace:   PhaseTrace(r.Phases),
		ErrorMessage: r.ErrorMessage,
		TripReport:   r.TripReport,
	}

	for _, s := range r.Steps {
		rs := ReportStep{
			Number:   s.Index + 1,
			Outcome:  s.Outcome,
			Reason:   s.Reason,
			Attempts: s.Attempts,
			Duration: s.Duration,
		}
		if s.Step != nil {
			rs.Instruction = s.Step.String()
			rs.Kind = s.Step.Kind()
		}
		if s.Err != nil {
			rs.Error = s.Err.Error()
		}
		report.Steps = append(report.Steps, rs)
	}

	for i, ev := range r.Frames {
		report.Frames = append(report.Frames, frameFor(fmt.Sprintf("frame %d", i+1), ev))
	}
	if r.Evidence != nil {
		report.Frames = append(report.Frames, frameFor("final", *r.Evidence))
		if r.Evidence.ConsolePath != "" {
			if data, err := os.ReadFile(r.Evidence.ConsolePath); err == nil {
				report.Console = string(data)
			}
		}
	}

	report.Metadata = ReportMetadata{
		Scenario:   report.Scenario,
		RunID:      report.RunID,
		Duration:   report.Duration.Round(time.Millisecond).String(),
		FrameCount: len(report.Frames),
		Timestamp:  report.Timestamp,
		Success:    report.Success,
		Final:      report.Final.String(),
		ReportType: ReportType,
	}
	return report
}

func frameFor(label string, ev Evidence) ReportFrame {
	frame := ReportFrame{
		Label:  label,
		Path:   ev.Path,
		Mode:   ev.Mode,
		SHA256: ev.SHA256,
	}
	if url, err := convertImageToDataURL(ev.Path); err == nil {
		frame.DataURL = url
	}
	return frame
}

// HTMLReportGenerator writes run reports into one directory.
type HTMLReportGenerator struct {
	outputDir string
	tmpl      *template.Template
}

// NewHTMLReportGenerator creates a generator writing index.html into outputDir.
func NewHTMLReportGenerator(outputDir string) *HTMLReportGenerator {
	return &HTMLReportGenerator{
		outputDir: outputDir,
		tmpl:      template.Must(template.New("report").Funcs(reportFuncs).Parse(testReportTemplate)),
	}
}

// GenerateReport renders report into the output directory and returns the
// page's path.
func (g *HTMLReportGenerator) GenerateReport(report Report) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(g.outputDir, "index.html")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	defer file.Close()

	if err := g.tmpl.Execute(file, report); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return path, nil
}

// WriteRunReport renders r under reportDir/<slug>/<timestamp>/.
func WriteRunReport(reportDir string, r *RunResult) (string, error) {
	report := ReportFromRun(r)
	dir := filepath.Join(reportDir, r.Slug, report.Timestamp)
	return NewHTMLReportGenerator(dir).GenerateReport(report)
}

var reportFuncs = template.FuncMap{
	"duration": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"join": strings.Join,
}

// convertImageToDataURL reads an image file and returns it as a base64 data URL.
func convertImageToDataURL(imagePath string) (template.URL, error) {
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read image file: %w", err)
	}

	var mimeType string
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	case ".gif":
		mimeType = "image/gif"
	case ".webp":
		mimeType = "image/webp"
	default:
		mimeType = "image/png"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageBytes))
	return template.URL(dataURL), nil
}
