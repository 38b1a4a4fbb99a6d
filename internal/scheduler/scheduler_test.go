package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"shipwatch/internal/domain"
)

type fakeSource struct {
	candidates []domain.PollCandidate
	failCall   int // 1-based call number that errors; 0 = never
	calls      int
}

func (f *fakeSource) FindDueForPoll(_ context.Context, offset, limit int) ([]domain.PollCandidate, error) {
	f.calls++
	if f.failCall != 0 && f.calls == f.failCall {
		return nil, errors.New("store unavailable")
	}
	if offset >= len(f.candidates) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.candidates) {
		end = len(f.candidates)
	}
	return f.candidates[offset:end], nil
}

type fakeQueue struct {
	batches  [][]domain.PollJob
	failCall int // 1-based call number that errors; 0 = never
	calls    int
}

func (q *fakeQueue) BulkSubmit(_ context.Context, jobs []domain.PollJob) error {
	q.calls++
	if q.failCall != 0 && q.calls == q.failCall {
		return errors.New("queue unavailable")
	}
	cp := make([]domain.PollJob, len(jobs))
	copy(cp, jobs)
	q.batches = append(q.batches, cp)
	return nil
}

func (q *fakeQueue) all() []domain.PollJob {
	var out []domain.PollJob
	for _, b := range q.batches {
		out = append(out, b...)
	}
	return out
}

func newTestEngine(src *fakeSource, q *fakeQueue, now time.Time) *Engine {
	e := New(src, q, zap.NewNop())
	e.now = func() time.Time { return now }
	return e
}

func manyCandidates(n int) []domain.PollCandidate {
	out := make([]domain.PollCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.PollCandidate{ID: fmt.Sprintf("shp-%05d", i)})
	}
	return out
}

func TestRunEmpty(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	q := &fakeQueue{}
	e := newTestEngine(src, q, time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC))

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ShipmentsFound != 0 || res.JobsEnqueued != 0 || res.Truncated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}
	if q.calls != 0 {
		t.Fatalf("queue should not be called on an empty run, got %d calls", q.calls)
	}
}

func TestRunClassifiesAndKeys(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	tomorrow := now.Add(20 * time.Hour)
	farOut := now.Add(5 * 24 * time.Hour)

	src := &fakeSource{candidates: []domain.PollCandidate{
		{ID: "shp-a", ExpectedDeliveryDate: &past},
		{ID: "shp-b", ExpectedDeliveryDate: &tomorrow},
		{ID: "shp-c", ExpectedDeliveryDate: &farOut},
		{ID: "shp-d"}, // unknown ETA
	}}
	q := &fakeQueue{}
	e := newTestEngine(src, q, now)

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ShipmentsFound != 4 || res.JobsEnqueued != 4 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if q.calls != 1 {
		t.Fatalf("expected one bulk submit for one page, got %d", q.calls)
	}

	want := map[string]domain.UrgencyTier{
		"shp-a": domain.TierUrgent,
		"shp-b": domain.TierHigh,
		"shp-c": domain.TierLow,
		"shp-d": domain.TierLow,
	}
	for _, job := range q.all() {
		if job.Name != domain.PollJobName {
			t.Fatalf("job name = %q, want %q", job.Name, domain.PollJobName)
		}
		if job.DedupeKey != "poll-"+job.ShipmentID {
			t.Fatalf("dedupe key = %q for shipment %q", job.DedupeKey, job.ShipmentID)
		}
		if job.Priority != want[job.ShipmentID] {
			t.Fatalf("shipment %s priority = %v, want %v", job.ShipmentID, job.Priority, want[job.ShipmentID])
		}
	}
}

func TestRunPagesUntilShortPage(t *testing.T) {
	t.Parallel()
	src := &fakeSource{candidates: manyCandidates(1200)}
	q := &fakeQueue{}
	e := newTestEngine(src, q, time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC))

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ShipmentsFound != 1200 || res.JobsEnqueued != 1200 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.Truncated {
		t.Fatal("run should not be truncated below the ceiling")
	}
	if src.calls != 3 {
		t.Fatalf("expected 3 store pages, got %d", src.calls)
	}
	if q.calls != 3 {
		t.Fatalf("expected one bulk submit per page, got %d", q.calls)
	}
	if got := len(q.batches[2]); got != 200 {
		t.Fatalf("final batch size = %d, want 200", got)
	}
}

func TestRunQueueFailureIsolatedPerPage(t *testing.T) {
	t.Parallel()
	src := &fakeSource{candidates: manyCandidates(1200)}
	q := &fakeQueue{failCall: 2}
	e := newTestEngine(src, q, time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC))

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("a queue failure must not abort the run, got: %v", err)
	}
	if res.ShipmentsFound != 1200 {
		t.Fatalf("ShipmentsFound = %d, want 1200 (failed page still counts)", res.ShipmentsFound)
	}
	if res.JobsEnqueued != 700 {
		t.Fatalf("JobsEnqueued = %d, want 700 (second page lost)", res.JobsEnqueued)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected exactly one recorded error, got %v", res.Errors)
	}
	if !strings.Contains(res.Errors[0], "page 1") {
		t.Fatalf("error should name the failing page: %q", res.Errors[0])
	}
}

func TestRunTruncatesAtCeiling(t *testing.T) {
	t.Parallel()
	src := &fakeSource{candidates: manyCandidates(10500)}
	q := &fakeQueue{}
	e := newTestEngine(src, q, time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC))

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ShipmentsFound != 10000 || res.JobsEnqueued != 10000 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if !res.Truncated {
		t.Fatal("expected Truncated when the backlog exceeds the per-run ceiling")
	}
	if src.calls != 20 {
		t.Fatalf("expected 20 store pages, got %d", src.calls)
	}
}

// With the backlog exactly at the ceiling the store never gets to report a
// short page, so the run is conservatively marked truncated.
func TestRunTruncatesAtExactCeiling(t *testing.T) {
	t.Parallel()
	src := &fakeSource{candidates: manyCandidates(10000)}
	q := &fakeQueue{}
	e := newTestEngine(src, q, time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC))

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.ShipmentsFound != 10000 || res.JobsEnqueued != 10000 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if !res.Truncated {
		t.Fatal("expected Truncated at the exact ceiling")
	}
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		failCall int
	}{
		{"first page", 1},
		{"second page", 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{candidates: manyCandidates(600), failCall: tt.failCall}
			q := &fakeQueue{}
			e := newTestEngine(src, q, time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC))

			res, err := e.Run(context.Background())
			if err == nil {
				t.Fatal("expected a store read failure to abort the run")
			}
			if res.ShipmentsFound != 0 || res.JobsEnqueued != 0 {
				t.Fatalf("no partial result expected on a fatal run, got %+v", res)
			}
		})
	}
}

func TestRunReportsDuration(t *testing.T) {
	t.Parallel()
	src := &fakeSource{candidates: manyCandidates(3)}
	q := &fakeQueue{}
	e := New(src, q, zap.NewNop())

	base := time.Date(2026, time.February, 6, 12, 0, 0, 0, time.UTC)
	calls := 0
	e.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 25 * time.Millisecond)
	}

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Duration <= 0 {
		t.Fatalf("Duration = %v, want > 0", res.Duration)
	}
}
