package longtake

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DashboardEntry is one run report listed on the dashboard.
type DashboardEntry struct {
	Scenario     string    `json:"scenario"`
	Timestamp    string    `json:"timestamp"`
	Success      bool      `json:"success"`
	Final        string    `json:"final"`
	FrameCount   int       `json:"frame_count"`
	Duration     string    `json:"duration"`
	ReportPath   string    `json:"report_path"`
	RelativePath string    `json:"relative_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// Dashboard is the data rendered into the dashboard page.
type Dashboard struct {
	Reports     []DashboardEntry
	Passed      int
	Failed      int
	GeneratedAt time.Time
}

// GenerateDashboard writes baseDir/index.html listing every run report
// found under baseDir/<scenario>/<timestamp>/index.html, newest first.
func GenerateDashboard(baseDir string) (string, *Dashboard, error) {
	entries, err := ScanReports(baseDir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to scan reports: %w", err)
	}

	data := &Dashboard{Reports: entries, GeneratedAt: time.Now()}
	for _, e := range entries {
		if e.Success {
			data.Passed++
		} else {
			data.Failed++
		}
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create dashboard directory: %w", err)
	}
	path := filepath.Join(baseDir, "index.html")
	file, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create dashboard file: %w", err)
	}
	defer file.Close()

	if err := getDashboardTemplate().Execute(file, data); err != nil {
		return "", nil, fmt.Errorf("failed to execute dashboard template: %w", err)
	}
	return path, data, nil
}

// ScanReports finds the run reports under baseDir. A missing baseDir has
// no reports.
func ScanReports(baseDir string) ([]DashboardEntry, error) {
	var entries []DashboardEntry

	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "index.html" || path == filepath.Join(baseDir, "index.html") {
			return nil
		}

		dir := filepath.Dir(path)
		timestamp := filepath.Base(dir)
		if _, err := time.Parse(ReportTimestampLayout, timestamp); err != nil {
			return nil
		}

		entry := DashboardEntry{
			Scenario:     filepath.Base(filepath.Dir(dir)),
			Timestamp:    timestamp,
			ReportPath:   path,
			RelativePath: getRelativePath(baseDir, path),
		}
		if info, err := d.Info(); err == nil {
			entry.CreatedAt = info.ModTime()
		}
		if meta, err := extractReportInfo(path); err == nil {
			entry.Scenario = meta.Scenario
			entry.Success = meta.Success
			entry.Final = meta.Final
			entry.FrameCount = meta.FrameCount
			entry.Duration = meta.Duration
		}
		entries = append(entries, entry)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// extractReportInfo reads the JSON metadata block of a run report.
func extractReportInfo(htmlPath string) (*ReportMetadata, error) {
	content, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}
	return extractFromJSON(string(content))
}

func extractFromJSON(htmlContent string) (*ReportMetadata, error) {
	start := strings.Index(htmlContent, `<script type="application/json" id="test-metadata">`)
	if start == -1 {
		return nil, fmt.Errorf("no JSON metadata found")
	}

	jsonStart := strings.Index(htmlContent[start:], "{")
	if jsonStart == -1 {
		return nil, fmt.Errorf("no JSON opening brace found in metadata")
	}
	start += jsonStart

	end := strings.Index(htmlContent[start:], "</script>")
	if end == -1 {
		return nil, fmt.Errorf("no script closing tag found")
	}

	var meta ReportMetadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(htmlContent[start:start+end])), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse JSON metadata: %w", err)
	}
	if meta.ReportType != ReportType {
		return nil, fmt.Errorf("unexpected report type %q", meta.ReportType)
	}
	return &meta, nil
}

func getRelativePath(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

func getDashboardTemplate() *template.Template {
	return template.Must(template.New("dashboard").Parse(dashboardTemplate))
}
