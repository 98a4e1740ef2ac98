// Package scheduler decides which tracked URLs are due for a check.
// All URLs share one central check interval; a failed check is retried
// after half of it.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
)

// Entry describes one URL's place in the schedule. A positive Interval
// overrides the shared check interval for this URL.
type Entry struct {
	URL      string
	Type     string
	Priority string
	Interval time.Duration
}

// Upcoming is one row of the upcoming-checks view.
type Upcoming struct {
	URL          string    `json:"url"`
	NextCheck    time.Time `json:"next_check"`
	Priority     string    `json:"priority"`
	SecondsUntil float64   `json:"seconds_until"`
}

// Status summarizes the schedule for operators.
type Status struct {
	TotalURLs            int            `json:"total_urls"`
	DueURLs              int            `json:"due_urls"`
	NextCheckIn          *float64       `json:"next_check_in"`
	CheckInterval        int            `json:"central_check_interval"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
}

// Scheduler tracks per-URL check times against a shared interval.
// Safe for concurrent use.
type Scheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	schedules map[string]*model.URLSchedule
	logger    logging.Logger

	now func() time.Time
}

// New builds a Scheduler over the given entries. Every URL starts due
// immediately.
func New(entries []Entry, interval time.Duration, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &Scheduler{
		interval:  interval,
		schedules: make(map[string]*model.URLSchedule, len(entries)),
		logger:    logger.With(logging.Field{Key: "component", Value: "scheduler"}),
		now:       time.Now,
	}
	start := s.now()
	for _, e := range entries {
		next := start
		ci := interval
		if e.Interval > 0 {
			ci = e.Interval
		}
		s.schedules[e.URL] = &model.URLSchedule{
			URL:           e.URL,
			CheckInterval: int(ci.Seconds()),
			Type:          e.Type,
			Priority:      e.Priority,
			NextCheck:     &next,
		}
	}
	s.logger.Info("scheduler initialized",
		logging.Field{Key: "urls", Value: len(entries)},
		logging.Field{Key: "interval_seconds", Value: int(interval.Seconds())})
	return s
}

// DueURLs returns the URLs whose next check time has arrived, sorted
// for deterministic cycle order.
func (s *Scheduler) DueURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []string
	for url, sched := range s.schedules {
		if sched.NextCheck == nil || !now.Before(*sched.NextCheck) {
			due = append(due, url)
		}
	}
	sort.Strings(due)
	s.logger.Debug("due URLs computed", logging.Field{Key: "count", Value: len(due)})
	return due
}

// MarkChecked records a completed check. A successful check pushes the
// next one a full interval out; a failed one retries after half.
func (s *Scheduler) MarkChecked(url string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[url]
	if !ok {
		return
	}
	now := s.now()
	sched.LastChecked = &now

	delay := time.Duration(sched.CheckInterval) * time.Second
	if delay <= 0 {
		delay = s.interval
	}
	if !success {
		delay /= 2
	}
	next := now.Add(delay)
	sched.NextCheck = &next
}

// Reset makes a URL due immediately.
func (s *Scheduler) Reset(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[url]
	if !ok {
		return
	}
	now := s.now()
	sched.NextCheck = &now
	s.logger.Info("schedule reset", logging.Field{Key: "url", Value: url})
}

// Status reports schedule totals, due counts and the seconds until the
// earliest pending check.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Status{
		CheckInterval:        int(s.interval.Seconds()),
		TotalURLs:            len(s.schedules),
		PriorityDistribution: map[string]int{},
	}

	var earliest *time.Time
	for _, sched := range s.schedules {
		st.PriorityDistribution[sched.Priority]++
		if sched.NextCheck == nil || !now.Before(*sched.NextCheck) {
			st.DueURLs++
		}
		if sched.NextCheck != nil && (earliest == nil || sched.NextCheck.Before(*earliest)) {
			earliest = sched.NextCheck
		}
	}
	if earliest != nil {
		secs := earliest.Sub(now).Seconds()
		if secs < 0 {
			secs = 0
		}
		st.NextCheckIn = &secs
	}
	return st
}

// UpcomingChecks returns the next checks ordered by time, at most
// limit rows.
func (s *Scheduler) UpcomingChecks(limit int) []Upcoming {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []Upcoming
	for url, sched := range s.schedules {
		if sched.NextCheck == nil {
			continue
		}
		out = append(out, Upcoming{
			URL:          url,
			NextCheck:    *sched.NextCheck,
			Priority:     sched.Priority,
			SecondsUntil: sched.NextCheck.Sub(now).Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextCheck.Equal(out[j].NextCheck) {
			return out[i].URL < out[j].URL
		}
		return out[i].NextCheck.Before(out[j].NextCheck)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Schedule returns a copy of one URL's schedule, or nil if untracked.
func (s *Scheduler) Schedule(url string) *model.URLSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[url]
	if !ok {
		return nil
	}
	cp := *sched
	return &cp
}
