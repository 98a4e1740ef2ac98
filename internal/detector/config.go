package detector

// Thresholds tunes the differ's sensitivity. All values are compared
// with strict "greater than": a delta exactly at a threshold is not a
// change.
type Thresholds struct {
	// ContentSize is the byte delta above which a content-length change
	// is reported.
	ContentSize int `yaml:"content_size"`

	// WordCount is the word delta above which a word-count change is
	// reported.
	WordCount int `yaml:"word_count"`

	// WordCountMajor upgrades a word-count change from low to medium
	// severity.
	WordCountMajor int `yaml:"word_count_major"`

	// PolicyKeywordCount is the per-category keyword delta above which
	// a policy keyword change is reported.
	PolicyKeywordCount int `yaml:"policy_keyword_count"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ContentSize:        1000,
		WordCount:          50,
		WordCountMajor:     100,
		PolicyKeywordCount: 2,
	}
}
