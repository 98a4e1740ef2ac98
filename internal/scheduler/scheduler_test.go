package scheduler

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestScheduler(interval time.Duration) (*Scheduler, *time.Time) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New([]Entry{
		{URL: "https://a.example.com/policy", Type: "policy", Priority: "high"},
		{URL: "https://b.example.com/terms", Type: "policy", Priority: "medium"},
		{URL: "https://c.example.com/blog", Type: "research", Priority: "medium"},
	}, interval, nil)
	s.now = fixedClock(now)
	// Re-seed next checks so they reflect the fixed clock.
	for _, url := range []string{"https://a.example.com/policy", "https://b.example.com/terms", "https://c.example.com/blog"} {
		s.Reset(url)
	}
	return s, &now
}

func TestDueURLs_AllDueAtStart(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(time.Hour)

	due := s.DueURLs()
	if len(due) != 3 {
		t.Fatalf("expected 3 due URLs, got %d", len(due))
	}
	if due[0] != "https://a.example.com/policy" {
		t.Errorf("expected sorted order, got %v", due)
	}
}

func TestMarkChecked_SuccessPushesFullInterval(t *testing.T) {
	t.Parallel()
	s, now := newTestScheduler(time.Hour)

	s.MarkChecked("https://a.example.com/policy", true)

	sched := s.Schedule("https://a.example.com/policy")
	if sched.LastChecked == nil || !sched.LastChecked.Equal(*now) {
		t.Errorf("last checked = %v", sched.LastChecked)
	}
	want := now.Add(time.Hour)
	if sched.NextCheck == nil || !sched.NextCheck.Equal(want) {
		t.Errorf("next check = %v, want %v", sched.NextCheck, want)
	}

	due := s.DueURLs()
	if len(due) != 2 {
		t.Errorf("expected 2 due after marking one, got %v", due)
	}
}

func TestMarkChecked_FailureRetriesAtHalfInterval(t *testing.T) {
	t.Parallel()
	s, now := newTestScheduler(time.Hour)

	s.MarkChecked("https://a.example.com/policy", false)

	sched := s.Schedule("https://a.example.com/policy")
	want := now.Add(30 * time.Minute)
	if sched.NextCheck == nil || !sched.NextCheck.Equal(want) {
		t.Errorf("next check = %v, want %v", sched.NextCheck, want)
	}
}

func TestMarkChecked_PerURLIntervalOverride(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New([]Entry{
		{URL: "https://fast.example.com/policy", Priority: "high", Interval: 10 * time.Minute},
	}, time.Hour, nil)
	s.now = fixedClock(now)
	s.Reset("https://fast.example.com/policy")

	s.MarkChecked("https://fast.example.com/policy", true)

	sched := s.Schedule("https://fast.example.com/policy")
	want := now.Add(10 * time.Minute)
	if sched.NextCheck == nil || !sched.NextCheck.Equal(want) {
		t.Errorf("next check = %v, want %v", sched.NextCheck, want)
	}
}

func TestMarkChecked_UnknownURLIgnored(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(time.Hour)
	s.MarkChecked("https://nowhere.example.com/", true)
	if s.Schedule("https://nowhere.example.com/") != nil {
		t.Error("unknown URL must not be added")
	}
}

func TestReset_MakesURLDueAgain(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(time.Hour)

	s.MarkChecked("https://a.example.com/policy", true)
	s.Reset("https://a.example.com/policy")

	found := false
	for _, url := range s.DueURLs() {
		if url == "https://a.example.com/policy" {
			found = true
		}
	}
	if !found {
		t.Error("reset URL should be due")
	}
}

func TestStatus_CountsAndNextCheck(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(time.Hour)

	s.MarkChecked("https://a.example.com/policy", true)
	s.MarkChecked("https://b.example.com/terms", false)

	st := s.Status()
	if st.TotalURLs != 3 {
		t.Errorf("total = %d", st.TotalURLs)
	}
	if st.DueURLs != 1 {
		t.Errorf("due = %d", st.DueURLs)
	}
	if st.CheckInterval != 3600 {
		t.Errorf("interval = %d", st.CheckInterval)
	}
	if st.PriorityDistribution["medium"] != 2 || st.PriorityDistribution["high"] != 1 {
		t.Errorf("priority distribution = %v", st.PriorityDistribution)
	}
	// The still-due URL has next check at "now" so the earliest gap is 0.
	if st.NextCheckIn == nil || *st.NextCheckIn != 0 {
		t.Errorf("next check in = %v", st.NextCheckIn)
	}
}

func TestUpcomingChecks_OrderedAndLimited(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(time.Hour)

	s.MarkChecked("https://a.example.com/policy", true)  // +1h
	s.MarkChecked("https://b.example.com/terms", false)  // +30m
	s.MarkChecked("https://c.example.com/blog", true)    // +1h

	up := s.UpcomingChecks(2)
	if len(up) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(up))
	}
	if up[0].URL != "https://b.example.com/terms" {
		t.Errorf("first upcoming = %q", up[0].URL)
	}
	if up[0].SecondsUntil != 1800 {
		t.Errorf("seconds until = %v", up[0].SecondsUntil)
	}
	// Ties break on URL.
	if up[1].URL != "https://a.example.com/policy" {
		t.Errorf("second upcoming = %q", up[1].URL)
	}
}
