package jobs_test

import (
	"testing"

	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

func newTracker() *jobs.Tracker {
	return jobs.NewTracker(events.NewStream(32))
}

func TestLifecycle(t *testing.T) {
	tr := newTracker()

	rec := tr.Create("req-1", "sess", "asset.save", "")
	if rec.Status != jobs.StatusQueued {
		t.Errorf("status = %q, want queued", rec.Status)
	}

	tr.Start(rec.ID)
	tr.UpdateProgress(rec.ID, 55, "executing tool")

	got, ok := tr.Get(rec.ID)
	if !ok {
		t.Fatal("job not found")
	}
	if got.Status != jobs.StatusRunning || got.Progress != 55 {
		t.Errorf("got %+v", got)
	}

	final := tr.Finalize(rec.ID, true, "ok", map[string]any{"saved": true}, nil)
	if final.Status != jobs.StatusSucceeded {
		t.Errorf("status = %q, want succeeded", final.Status)
	}
	if final.Progress != 100 {
		t.Errorf("success should force progress to 100, got %d", final.Progress)
	}
	got, _ = tr.Get(rec.ID)
	if got.Result["saved"] != true {
		t.Errorf("finished job should carry its result, got %+v", got.Result)
	}
}

func TestTerminalIsSticky(t *testing.T) {
	tr := newTracker()
	rec := tr.Create("req-1", "sess", "asset.save", "")
	diags := []protocol.Diagnostic{protocol.Errorf(protocol.CodeInternalException, "boom")}
	tr.Finalize(rec.ID, false, "boom", nil, diags)

	tr.UpdateProgress(rec.ID, 10, "late update")
	after := tr.Finalize(rec.ID, true, "late success", map[string]any{"x": 1}, nil)
	if after.Status != jobs.StatusFailed {
		t.Errorf("status = %q, want failed to stick", after.Status)
	}
	if len(after.Diagnostics) != 1 || after.Diagnostics[0].Code != protocol.CodeInternalException {
		t.Errorf("diagnostics = %+v, want the first finalization's", after.Diagnostics)
	}
	if after.Result != nil {
		t.Errorf("late finalize should not overwrite the payload: %+v", after.Result)
	}
	got, _ := tr.Get(rec.ID)
	if got.Progress != 0 {
		t.Errorf("terminal job accepted progress update: %d", got.Progress)
	}
}

func TestCancelBlacklistsToken(t *testing.T) {
	tr := newTracker()
	rec := tr.Create("req-1", "sess", "asset.save", "tok-1")
	tr.Start(rec.ID)

	got, ok := tr.Cancel(rec.ID)
	if !ok || got.Status != jobs.StatusCanceled {
		t.Fatalf("cancel: ok=%v status=%q", ok, got.Status)
	}
	if !tr.IsTokenCanceled("tok-1") {
		t.Error("cancel token should be blacklisted")
	}

	// Canceling again returns the record unchanged and still succeeds.
	again, ok := tr.Cancel(rec.ID)
	if !ok || again.Status != jobs.StatusCanceled {
		t.Errorf("repeat cancel: ok=%v status=%q", ok, again.Status)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	tr := newTracker()
	if _, ok := tr.Cancel("job-missing"); ok {
		t.Error("canceling an unknown job should fail")
	}
}

func TestStatusCounts(t *testing.T) {
	tr := newTracker()
	a := tr.Create("req-1", "sess", "t", "")
	tr.Create("req-2", "sess", "t", "")
	tr.Finalize(a.ID, true, "", nil, nil)

	counts := tr.StatusCounts()
	if counts["succeeded"] != 1 || counts["queued"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestJobStatusEventsPublished(t *testing.T) {
	stream := events.NewStream(32)
	tr := jobs.NewTracker(stream)

	rec := tr.Create("req-1", "sess", "t", "")
	tr.Start(rec.ID)
	tr.Finalize(rec.ID, true, "done", nil, nil)

	statusEvents := 0
	for _, ev := range stream.Recent(0) {
		if ev.Type == events.TypeJobStatus && ev.JobID == rec.ID {
			statusEvents++
		}
	}
	if statusEvents != 3 {
		t.Errorf("published %d job.status events, want 3", statusEvents)
	}
}
