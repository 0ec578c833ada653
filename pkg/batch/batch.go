// Package batch controls how the document store chunks embedding requests.
package batch

import "time"

// Controller decides embedding request batch size and pacing.
//
// The document store chunks pending texts by Size, sleeps Delay between
// consecutive provider calls (never before the first), and, when
// Deduplicate reports true, embeds repeated texts once and fans the
// result out to every occurrence.
type Controller interface {
	// Size returns the number of texts per provider call. Values below 1
	// are treated as 1 by callers.
	Size() int

	// Delay returns the pause between consecutive provider calls.
	Delay() time.Duration

	// Deduplicate reports whether identical texts within one upsert
	// should be embedded once.
	Deduplicate() bool
}

// Fixed is a Controller with constant settings.
type Fixed struct {
	BatchSize  int
	BatchDelay time.Duration
	Dedup      bool
}

// NewFixed returns a Controller with the given batch size and delay,
// with deduplication enabled. A size below 1 defaults to 32.
func NewFixed(size int, delay time.Duration) *Fixed {
	if size < 1 {
		size = 32
	}
	return &Fixed{BatchSize: size, BatchDelay: delay, Dedup: true}
}

// Size returns the configured batch size.
func (f *Fixed) Size() int { return f.BatchSize }

// Delay returns the configured inter-batch delay.
func (f *Fixed) Delay() time.Duration { return f.BatchDelay }

// Deduplicate reports whether deduplication is enabled.
func (f *Fixed) Deduplicate() bool { return f.Dedup }

var _ Controller = (*Fixed)(nil)
