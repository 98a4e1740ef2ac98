package detector_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/raysh454/vigil/internal/detector"
	"github.com/raysh454/vigil/internal/model"
)

func newTestStore(t *testing.T) *detector.SnapshotStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	return detector.NewSnapshotStore(path, nil)
}

func newTestDetector(t *testing.T) *detector.Detector {
	t.Helper()
	return detector.New(newTestStore(t), detector.DefaultThresholds(), nil)
}

func newDetectorOn(t *testing.T, store *detector.SnapshotStore) *detector.Detector {
	t.Helper()
	return detector.New(store, detector.DefaultThresholds(), nil)
}

// basicMeta builds a minimal healthy snapshot for url.
func basicMeta(url string) *model.URLMetadata {
	return &model.URLMetadata{
		URL:           url,
		Timestamp:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		StatusCode:    200,
		Headers:       map[string]string{},
		FinalURL:      url,
		ContentLength: 5000,
	}
}

// htmlMeta builds a snapshot carrying HTML metadata with the given
// title, word count and version indicators.
func htmlMeta(url, title string, wordCount int, versions []string) *model.URLMetadata {
	meta := basicMeta(url)
	meta.HTMLMetadata = &model.HTMLMetadata{
		URL:   url,
		Title: title,
		ContentAnalysis: model.ContentAnalysis{
			WordCount:         wordCount,
			VersionIndicators: versions,
		},
	}
	return meta
}

func countType(changes []model.ChangeRecord, changeType string) int {
	n := 0
	for _, c := range changes {
		if c.ChangeType == changeType {
			n++
		}
	}
	return n
}

func findType(changes []model.ChangeRecord, changeType string) *model.ChangeRecord {
	for i := range changes {
		if changes[i].ChangeType == changeType {
			return &changes[i]
		}
	}
	return nil
}
