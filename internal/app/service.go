// Package app wires the monitor, detector, scheduler and reporting
// into the monitoring service that runs cycles.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/vigil/internal/detector"
	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
	"github.com/raysh454/vigil/internal/report"
	"github.com/raysh454/vigil/internal/scheduler"
)

// Checker fetches one URL's metadata snapshot. Satisfied by
// monitor.Monitor.
type Checker interface {
	Check(ctx context.Context, url string) *model.URLMetadata
	Close() error
}

// ChangeSink persists detected changes and cycle stats. Satisfied by
// report.ChangeLog.
type ChangeSink interface {
	LogChange(ctx context.Context, cycleID string, change *model.DetectedChange) error
	LogCycle(ctx context.Context, stats *model.CycleStats) error
}

// ReportSink writes per-cycle report artifacts. Satisfied by
// report.Writer.
type ReportSink interface {
	WriteCycle(changes []*model.DetectedChange, stats *model.CycleStats) (string, error)
}

// Service runs monitoring cycles over the configured URLs.
type Service struct {
	checker   Checker
	detector  *detector.Detector
	scheduler *scheduler.Scheduler
	changeLog ChangeSink
	reports   ReportSink
	logger    logging.Logger

	mu        sync.Mutex
	lastCycle *model.CycleStats
	running   bool

	subMu  sync.Mutex
	subs   map[int]chan *model.DetectedChange
	nextID int
}

// NewService assembles a Service. changeLog and reports may be nil
// when persistence of that kind is disabled.
func NewService(checker Checker, det *detector.Detector, sched *scheduler.Scheduler, changeLog ChangeSink, reports ReportSink, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Service{
		checker:   checker,
		detector:  det,
		scheduler: sched,
		changeLog: changeLog,
		reports:   reports,
		logger:    logger.With(logging.Field{Key: "component", Value: "service"}),
		subs:      map[int]chan *model.DetectedChange{},
	}
}

// Subscribe returns a channel receiving every detected change from the
// moment of subscription, plus a cancel function. Slow consumers drop
// messages rather than stalling the cycle.
func (s *Service) Subscribe() (<-chan *model.DetectedChange, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan *model.DetectedChange, 16)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Service) publish(change *model.DetectedChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// RunCycle checks every due URL once, logs what changed and persists
// the snapshot history. Cycles never overlap; a call while one is in
// flight returns nil.
func (s *Service) RunCycle(ctx context.Context) *model.CycleStats {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("cycle already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	stats := &model.CycleStats{
		CycleID:   uuid.New().String(),
		StartTime: time.Now(),
		FirstRun:  s.detector.IsFirstRun(),
	}

	due := s.scheduler.DueURLs()
	stats.URLsChecked = len(due)

	s.logger.Info("cycle started",
		logging.Field{Key: "cycle_id", Value: stats.CycleID},
		logging.Field{Key: "due_urls", Value: len(due)},
		logging.Field{Key: "first_run", Value: stats.FirstRun})

	var detected []*model.DetectedChange
	for _, url := range due {
		if ctx.Err() != nil {
			s.logger.Warn("cycle interrupted", logging.Field{Key: "cycle_id", Value: stats.CycleID})
			break
		}
		change := s.checkURL(ctx, url, stats)
		if change != nil {
			detected = append(detected, change)
			s.publish(change)
		}
	}

	if err := s.detector.Save(); err != nil {
		stats.Errors++
	}

	s.logDetected(ctx, stats, detected)

	end := time.Now()
	stats.EndTime = &end
	stats.DurationSeconds = end.Sub(stats.StartTime).Seconds()
	stats.ChangesDetected = len(detected)

	if s.reports != nil {
		if _, err := s.reports.WriteCycle(detected, stats); err != nil {
			s.logger.Error("cycle report failed", logging.Field{Key: "error", Value: err.Error()})
			stats.Errors++
		}
	}
	if s.changeLog != nil {
		if err := s.changeLog.LogCycle(ctx, stats); err != nil {
			s.logger.Error("cycle row failed", logging.Field{Key: "error", Value: err.Error()})
			stats.Errors++
		}
	}

	s.mu.Lock()
	s.lastCycle = stats
	s.mu.Unlock()

	s.logger.Info("cycle completed",
		logging.Field{Key: "cycle_id", Value: stats.CycleID},
		logging.Field{Key: "changes", Value: stats.ChangesDetected},
		logging.Field{Key: "stealth_alerts", Value: stats.StealthAlerts},
		logging.Field{Key: "errors", Value: stats.Errors},
		logging.Field{Key: "duration_seconds", Value: stats.DurationSeconds})
	return stats
}

// checkURL fetches one URL, runs detection and returns the grouped
// change when anything was found.
func (s *Service) checkURL(ctx context.Context, url string, stats *model.CycleStats) *model.DetectedChange {
	current := s.checker.Check(ctx, url)
	success := current.Error == ""
	s.scheduler.MarkChecked(url, success)

	// Failed fetches stop here: the detector only ever sees good
	// observations, so a transient outage cannot pollute the history.
	if !success {
		stats.Errors++
		return nil
	}

	// The previous snapshot must be read before Detect overwrites it.
	previous := s.detector.Previous(url)
	changes := s.detector.Detect(url, current)
	if previous != nil {
		attachTextDeltas(changes, current, previous)
	}

	var alerts []model.StealthAlert
	if previous != nil {
		alerts = s.detector.DetectStealth(current, previous)
		for i := range alerts {
			alerts[i].URL = url
		}
		if len(alerts) > 0 {
			s.detector.RecordAlerts(alerts)
			stats.StealthAlerts += len(alerts)
			for _, a := range alerts {
				s.logger.Warn("stealth alert",
					logging.Field{Key: "url", Value: url},
					logging.Field{Key: "alert_type", Value: a.AlertType},
					logging.Field{Key: "severity", Value: a.Severity})
			}
		}
	}

	if len(changes) == 0 && len(alerts) == 0 {
		return nil
	}

	priority := "medium"
	if sched := s.scheduler.Schedule(url); sched != nil && sched.Priority != "" {
		priority = sched.Priority
	}

	return &model.DetectedChange{
		URL:           url,
		Changes:       changes,
		StealthAlerts: alerts,
		Metadata:      current,
		Timestamp:     time.Now(),
		ChangeSource:  model.SourceDirectMetadata,
		Priority:      priority,
	}
}

// attachTextDeltas annotates text-bearing change records with the
// added and removed runs between the two snapshots, so the changelog
// rows and cycle artifacts show what the text actually became.
func attachTextDeltas(changes []model.ChangeRecord, current, previous *model.URLMetadata) {
	if current.HTMLMetadata == nil || previous.HTMLMetadata == nil {
		return
	}
	for i := range changes {
		var delta []report.TextChunk
		switch changes[i].ChangeType {
		case model.ChangeWordCount:
			delta = report.TextDelta(
				previous.HTMLMetadata.ContentAnalysis.TextPreview,
				current.HTMLMetadata.ContentAnalysis.TextPreview)
		case model.ChangeMetaDescription:
			delta = report.TextDelta(previous.HTMLMetadata.MetaDescription, current.HTMLMetadata.MetaDescription)
		default:
			continue
		}
		if len(delta) > 0 {
			changes[i].Details["text_delta"] = delta
		}
	}
}

func (s *Service) logDetected(ctx context.Context, stats *model.CycleStats, detected []*model.DetectedChange) {
	if s.changeLog == nil {
		return
	}
	for _, change := range detected {
		if err := s.changeLog.LogChange(ctx, stats.CycleID, change); err != nil {
			s.logger.Error("change row failed",
				logging.Field{Key: "url", Value: change.URL},
				logging.Field{Key: "error", Value: err.Error()})
			stats.RowsFailed++
			continue
		}
		stats.RowsLogged++
	}
}

// StatusSnapshot is the service state exposed by the status API.
type StatusSnapshot struct {
	Scheduler scheduler.Status  `json:"scheduler"`
	FirstRun  bool              `json:"first_run"`
	Tracked   int               `json:"tracked_urls"`
	LastCycle *model.CycleStats `json:"last_cycle,omitempty"`
	Running   bool              `json:"cycle_running"`
}

// Status reports the current service state.
func (s *Service) Status() StatusSnapshot {
	s.mu.Lock()
	last := s.lastCycle
	running := s.running
	s.mu.Unlock()

	return StatusSnapshot{
		Scheduler: s.scheduler.Status(),
		FirstRun:  s.detector.IsFirstRun(),
		Tracked:   len(s.detector.TrackedURLs()),
		LastCycle: last,
		Running:   running,
	}
}

// TrackedURLs lists the normalized URLs with stored history.
func (s *Service) TrackedURLs() []string {
	return s.detector.TrackedURLs()
}

// History returns the stored snapshot for a URL, or nil.
func (s *Service) History(url string) *model.URLMetadata {
	return s.detector.Previous(url)
}

// Scheduler exposes the schedule for the status API.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Close releases the underlying checker.
func (s *Service) Close() error {
	return s.checker.Close()
}

var _ ChangeSink = (*report.ChangeLog)(nil)
var _ ReportSink = (*report.Writer)(nil)
