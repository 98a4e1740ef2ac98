package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
)

// CycleReport is the JSON artifact written after every monitoring
// cycle.
type CycleReport struct {
	ReportID        string                  `json:"report_id"`
	ReportDate      time.Time               `json:"report_date"`
	ChangesDetected []*model.DetectedChange `json:"changes_detected"`
	CycleStats      *model.CycleStats       `json:"cycle_stats"`
	Summary         CycleSummary            `json:"summary"`
}

// CycleSummary is the quick-glance block of a CycleReport.
type CycleSummary struct {
	TotalChanges  int  `json:"total_changes"`
	StealthAlerts int  `json:"stealth_alerts"`
	PolicyAlerts  int  `json:"policy_alerts"`
	FirstRun      bool `json:"first_run"`
}

// Writer writes cycle reports into a directory, one file per cycle.
type Writer struct {
	dir    string
	logger logging.Logger
}

// NewWriter creates the reports directory if needed.
func NewWriter(dir string, logger logging.Logger) (*Writer, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports directory %s: %w", dir, err)
	}
	return &Writer{
		dir:    dir,
		logger: logger.With(logging.Field{Key: "component", Value: "report"}),
	}, nil
}

// WriteCycle writes the report for one cycle and returns its path. The
// file is written atomically so a crashed cycle never leaves a
// truncated artifact.
func (w *Writer) WriteCycle(changes []*model.DetectedChange, stats *model.CycleStats) (string, error) {
	policyAlerts := 0
	stealthAlerts := 0
	for _, c := range changes {
		if c.HasPolicyAlert() {
			policyAlerts++
		}
		stealthAlerts += len(c.StealthAlerts)
	}
	if changes == nil {
		changes = []*model.DetectedChange{}
	}

	rep := CycleReport{
		ReportID:        stats.CycleID,
		ReportDate:      time.Now().UTC(),
		ChangesDetected: changes,
		CycleStats:      stats,
		Summary: CycleSummary{
			TotalChanges:  len(changes),
			StealthAlerts: stealthAlerts,
			PolicyAlerts:  policyAlerts,
			FirstRun:      stats.FirstRun,
		},
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal cycle report: %w", err)
	}

	path := filepath.Join(w.dir, stats.CycleID+".json")
	tmp, err := os.CreateTemp(w.dir, ".tmp-report-*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename report into place: %w", err)
	}

	w.logger.Info("cycle report written",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "changes", Value: len(changes)})
	return path, nil
}
