package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/vigil/internal/detector"
	"github.com/raysh454/vigil/internal/model"
	"github.com/raysh454/vigil/internal/report"
	"github.com/raysh454/vigil/internal/scheduler"
)

type stubChecker struct {
	responses map[string]*model.URLMetadata
	calls     []string
}

func (c *stubChecker) Check(_ context.Context, url string) *model.URLMetadata {
	c.calls = append(c.calls, url)
	if meta, ok := c.responses[url]; ok {
		cp := *meta
		return &cp
	}
	return &model.URLMetadata{
		URL:       url,
		Timestamp: time.Now(),
		Headers:   map[string]string{},
		FinalURL:  url,
		Error:     "no stub response",
	}
}

func (c *stubChecker) Close() error { return nil }

type recordingSink struct {
	changes []*model.DetectedChange
	cycles  []*model.CycleStats
}

func (r *recordingSink) LogChange(_ context.Context, _ string, change *model.DetectedChange) error {
	r.changes = append(r.changes, change)
	return nil
}

func (r *recordingSink) LogCycle(_ context.Context, stats *model.CycleStats) error {
	r.cycles = append(r.cycles, stats)
	return nil
}

type recordingReports struct {
	written []*model.CycleStats
}

func (r *recordingReports) WriteCycle(_ []*model.DetectedChange, stats *model.CycleStats) (string, error) {
	r.written = append(r.written, stats)
	return "report.json", nil
}

func stubMeta(url string, status int, wordCount int, versions []string) *model.URLMetadata {
	return &model.URLMetadata{
		URL:           url,
		Timestamp:     time.Now(),
		StatusCode:    status,
		Headers:       map[string]string{"content-type": "text/html"},
		FinalURL:      url,
		ContentLength: 5000,
		ResponseTime:  0.1,
		HTMLMetadata: &model.HTMLMetadata{
			URL:   url,
			Title: "Policy",
			ContentAnalysis: model.ContentAnalysis{
				WordCount:         wordCount,
				VersionIndicators: versions,
				KeywordCounts:     map[string]int{"privacy": 3},
			},
		},
	}
}

func newTestService(t *testing.T, checker Checker, urls []string) (*Service, *recordingSink, *recordingReports) {
	t.Helper()
	store := detector.NewSnapshotStore(filepath.Join(t.TempDir(), "history.json"), nil)
	det := detector.New(store, detector.DefaultThresholds(), nil)

	entries := make([]scheduler.Entry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, scheduler.Entry{URL: u, Type: "policy", Priority: "high"})
	}
	sched := scheduler.New(entries, time.Hour, nil)

	sink := &recordingSink{}
	reports := &recordingReports{}
	svc := NewService(checker, det, sched, sink, reports, nil)
	t.Cleanup(func() { svc.Close() })
	return svc, sink, reports
}

func TestRunCycle_FirstRunRecordsFirstDetections(t *testing.T) {
	t.Parallel()
	url := "https://example.com/policy"
	checker := &stubChecker{responses: map[string]*model.URLMetadata{
		url: stubMeta(url, 200, 500, []string{"1.0"}),
	}}
	svc, sink, reports := newTestService(t, checker, []string{url})

	stats := svc.RunCycle(context.Background())
	if stats == nil {
		t.Fatal("expected stats")
	}
	if !stats.FirstRun {
		t.Error("expected first run flag")
	}
	if stats.URLsChecked != 1 || stats.ChangesDetected != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.RowsLogged != 1 {
		t.Errorf("rows logged = %d", stats.RowsLogged)
	}

	if len(sink.changes) != 1 {
		t.Fatalf("sink changes = %d", len(sink.changes))
	}
	change := sink.changes[0]
	if len(change.Changes) != 1 || change.Changes[0].ChangeType != model.ChangeFirstDetection {
		t.Errorf("changes = %+v", change.Changes)
	}
	if change.Priority != "high" {
		t.Errorf("priority = %q", change.Priority)
	}
	if len(sink.cycles) != 1 || len(reports.written) != 1 {
		t.Error("expected cycle row and report artifact")
	}
}

func TestRunCycle_NoChangesSecondTime(t *testing.T) {
	t.Parallel()
	url := "https://example.com/policy"
	checker := &stubChecker{responses: map[string]*model.URLMetadata{
		url: stubMeta(url, 200, 500, []string{"1.0"}),
	}}
	svc, sink, _ := newTestService(t, checker, []string{url})

	svc.RunCycle(context.Background())
	svc.Scheduler().Reset(url)

	stats := svc.RunCycle(context.Background())
	if stats.ChangesDetected != 0 {
		t.Errorf("second cycle changes = %d", stats.ChangesDetected)
	}
	if len(sink.changes) != 1 {
		t.Errorf("sink should only have the first-detection row, got %d", len(sink.changes))
	}
	if stats.FirstRun {
		t.Error("second cycle must not be first run")
	}
}

func TestRunCycle_DetectsChangeAndStealthAlert(t *testing.T) {
	t.Parallel()
	url := "https://example.com/policy"
	checker := &stubChecker{responses: map[string]*model.URLMetadata{
		url: stubMeta(url, 200, 500, []string{"1.0"}),
	}}
	svc, sink, _ := newTestService(t, checker, []string{url})

	svc.RunCycle(context.Background())
	svc.Scheduler().Reset(url)

	// Big silent rewrite: +200 words, same version indicators.
	checker.responses[url] = stubMeta(url, 200, 700, []string{"1.0"})

	stats := svc.RunCycle(context.Background())
	if stats.ChangesDetected != 1 {
		t.Fatalf("changes = %d", stats.ChangesDetected)
	}
	if stats.StealthAlerts != 1 {
		t.Errorf("stealth alerts = %d", stats.StealthAlerts)
	}

	change := sink.changes[len(sink.changes)-1]
	if len(change.StealthAlerts) != 1 {
		t.Fatalf("change stealth alerts = %d", len(change.StealthAlerts))
	}
	alert := change.StealthAlerts[0]
	if alert.AlertType != model.StealthContentChange {
		t.Errorf("alert type = %q", alert.AlertType)
	}
	if alert.URL != url {
		t.Errorf("alert url = %q", alert.URL)
	}
	foundWordCount := false
	for _, c := range change.Changes {
		if c.ChangeType == model.ChangeWordCount {
			foundWordCount = true
		}
	}
	if !foundWordCount {
		t.Errorf("expected word count change, got %+v", change.Changes)
	}
}

func TestRunCycle_AttachesTextDeltaToWordCountChange(t *testing.T) {
	t.Parallel()
	url := "https://example.com/policy"
	first := stubMeta(url, 200, 500, []string{"1.0"})
	first.HTMLMetadata.ContentAnalysis.TextPreview = "We collect data for service improvement."
	checker := &stubChecker{responses: map[string]*model.URLMetadata{url: first}}
	svc, sink, _ := newTestService(t, checker, []string{url})

	svc.RunCycle(context.Background())
	svc.Scheduler().Reset(url)

	second := stubMeta(url, 200, 700, []string{"1.0"})
	second.HTMLMetadata.ContentAnalysis.TextPreview = "We collect data and share it with partners."
	checker.responses[url] = second

	svc.RunCycle(context.Background())

	change := sink.changes[len(sink.changes)-1]
	var rec *model.ChangeRecord
	for i := range change.Changes {
		if change.Changes[i].ChangeType == model.ChangeWordCount {
			rec = &change.Changes[i]
		}
	}
	if rec == nil {
		t.Fatalf("expected word count change, got %+v", change.Changes)
	}
	delta, ok := rec.Details["text_delta"].([]report.TextChunk)
	if !ok || len(delta) == 0 {
		t.Fatalf("expected text delta chunks, got %+v", rec.Details["text_delta"])
	}
	added := false
	for _, chunk := range delta {
		if chunk.Type == "added" && strings.Contains(chunk.Content, "partners") {
			added = true
		}
	}
	if !added {
		t.Errorf("expected an added chunk mentioning the new text, got %+v", delta)
	}
}

func TestRunCycle_FetchFailureCountsErrorAndRetriesSooner(t *testing.T) {
	t.Parallel()
	url := "https://down.example.com/policy"
	checker := &stubChecker{} // no stubbed response: every check fails
	svc, sink, _ := newTestService(t, checker, []string{url})

	stats := svc.RunCycle(context.Background())
	if stats.Errors == 0 {
		t.Error("expected error counted for failed fetch")
	}
	if stats.ChangesDetected != 0 || len(sink.changes) != 0 {
		t.Errorf("failed fetch must not produce changes, got %d", len(sink.changes))
	}

	sched := svc.Scheduler().Schedule(url)
	if sched.NextCheck == nil {
		t.Fatal("expected next check set")
	}
	// Half-interval retry lands well before the full hour.
	if until := time.Until(*sched.NextCheck); until > 45*time.Minute {
		t.Errorf("retry scheduled too late: %v", until)
	}
}

func TestRunCycle_SkipsURLsNotDue(t *testing.T) {
	t.Parallel()
	url := "https://example.com/policy"
	checker := &stubChecker{responses: map[string]*model.URLMetadata{
		url: stubMeta(url, 200, 500, nil),
	}}
	svc, _, _ := newTestService(t, checker, []string{url})

	svc.RunCycle(context.Background())
	// Not reset: the URL is an hour away from its next check.
	stats := svc.RunCycle(context.Background())
	if stats.URLsChecked != 0 {
		t.Errorf("urls checked = %d", stats.URLsChecked)
	}
	if len(checker.calls) != 1 {
		t.Errorf("checker calls = %v", checker.calls)
	}
}

func TestStatus_ReflectsState(t *testing.T) {
	t.Parallel()
	url := "https://example.com/policy"
	checker := &stubChecker{responses: map[string]*model.URLMetadata{
		url: stubMeta(url, 200, 500, nil),
	}}
	svc, _, _ := newTestService(t, checker, []string{url})

	st := svc.Status()
	if !st.FirstRun {
		t.Error("expected first run before any cycle")
	}
	if st.Scheduler.TotalURLs != 1 {
		t.Errorf("scheduler total = %d", st.Scheduler.TotalURLs)
	}

	svc.RunCycle(context.Background())

	st = svc.Status()
	if st.Tracked != 1 {
		t.Errorf("tracked = %d", st.Tracked)
	}
	if st.LastCycle == nil {
		t.Fatal("expected last cycle stats")
	}
	if st.Running {
		t.Error("no cycle should be running")
	}
}
