package queue

import (
	"strings"
	"testing"

	"shipwatch/internal/domain"
)

func TestTierKeysPriorityOrder(t *testing.T) {
	t.Parallel()
	got := tierKeys()
	want := []string{
		"shipwatch:q:urgent",
		"shipwatch:q:high",
		"shipwatch:q:medium",
		"shipwatch:q:low",
	}
	if len(got) != len(want) {
		t.Fatalf("tierKeys len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tierKeys[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeJob(t *testing.T) {
	t.Parallel()
	payload := `{"name":"poll","shipment_id":"shp-1","dedupe_key":"poll-shp-1","priority":1,"enqueued_at":1770000000}`
	job, err := decodeJob([]byte(payload))
	if err != nil {
		t.Fatalf("decodeJob error: %v", err)
	}
	if job.Name != domain.PollJobName {
		t.Fatalf("Name = %q, want %q", job.Name, domain.PollJobName)
	}
	if job.ShipmentID != "shp-1" || job.DedupeKey != "poll-shp-1" {
		t.Fatalf("unexpected identity fields: %+v", job)
	}
	if job.Priority != domain.TierHigh {
		t.Fatalf("Priority = %v, want %v", job.Priority, domain.TierHigh)
	}
}

func TestDecodeJobRejectsBadPayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload string
		wantMsg string
	}{
		{"malformed json", `{"name":`, "decode job payload"},
		{"missing shipment id", `{"name":"poll"}`, "missing shipment id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeJob([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}
