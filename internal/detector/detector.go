// Package detector implements the change-detection engine: snapshot
// persistence with URL-identity resolution, field-by-field diffing with
// configurable thresholds, and stealth-change heuristics for policy
// pages that change without saying so.
package detector

import (
	"github.com/raysh454/vigil/internal/logging"
	"github.com/raysh454/vigil/internal/model"
)

// Detector orchestrates store lookup, diffing and store update into one
// detect-and-persist operation per URL. A URL is either Unseen (no
// snapshot) or Tracked; the transition happens exactly once, on the
// first Detect call for its normalized identity.
type Detector struct {
	store  *SnapshotStore
	differ *Differ
	logger logging.Logger
}

// New creates a Detector on top of the given store.
func New(store *SnapshotStore, thresholds Thresholds, logger logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Detector{
		store:  store,
		differ: NewDiffer(thresholds),
		logger: logger,
	}
}

// Detect compares current against the last-known snapshot for url and
// persists current as the new snapshot. On first sight it returns a
// single first_detection record, since there is nothing to diff
// against.
// HTML and policy fields are only compared when both snapshots carry
// HTML metadata.
//
// The snapshot is updated even when no changes are found; the store
// must always reflect the latest observation. Detect does not save to
// disk; call Save once per batch.
func (d *Detector) Detect(url string, current *model.URLMetadata) []model.ChangeRecord {
	previous := d.store.Resolve(url)

	if previous == nil {
		d.store.Put(url, current)
		d.logger.Debug("first detection", logging.Field{Key: "url", Value: url})
		return []model.ChangeRecord{{
			ChangeType: model.ChangeFirstDetection,
			Source:     model.SourceDirectMetadata,
			Details:    map[string]any{"message": "URL detected for the first time"},
			Severity:   model.SeverityLow,
		}}
	}

	changes := d.differ.CompareHTTP(current, previous)

	if current.HTMLMetadata != nil && previous.HTMLMetadata != nil {
		changes = append(changes, d.differ.CompareHTML(current.HTMLMetadata, previous.HTMLMetadata)...)
		changes = append(changes, d.differ.ComparePolicy(current.HTMLMetadata, previous.HTMLMetadata)...)
	}

	d.store.Put(url, current)

	return changes
}

// Previous returns the stored snapshot for url without modifying the
// store. Callers that want stealth alerts grab the previous snapshot
// here before Detect overwrites it.
func (d *Detector) Previous(url string) *model.URLMetadata {
	return d.store.Resolve(url)
}

// DetectStealth runs the stealth heuristics against a pair of
// snapshots. It is deliberately separate from Detect so callers can
// route suspicious changes differently from ordinary ones.
func (d *Detector) DetectStealth(current, previous *model.URLMetadata) []model.StealthAlert {
	return DetectStealth(current, previous)
}

// RecordAlerts adds stealth alerts to the persisted alert history so
// they survive restarts alongside the snapshots.
func (d *Detector) RecordAlerts(alerts []model.StealthAlert) {
	d.store.RecordAlerts(alerts)
}

// Save flushes the store to disk. Call once per processed batch rather
// than per URL.
func (d *Detector) Save() error {
	return d.store.Save()
}

// IsFirstRun reports whether any history has been persisted yet.
func (d *Detector) IsFirstRun() bool {
	return d.store.IsFirstRun()
}

// TrackedURLs lists the normalized keys currently in the store.
func (d *Detector) TrackedURLs() []string {
	return d.store.TrackedURLs()
}
