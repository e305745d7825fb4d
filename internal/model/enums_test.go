package model

import "testing"

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		parsed, ok := ParseStatus(string(s))
		if !ok {
			t.Errorf("ParseStatus(%q) rejected a known status", s)
		}
		if parsed != s {
			t.Errorf("ParseStatus(%q) = %q", s, parsed)
		}
	}

	for _, bad := range []string{"", "READY", "rendering ", "exploded", "done"} {
		if _, ok := ParseStatus(bad); ok {
			t.Errorf("ParseStatus(%q) accepted an unknown status", bad)
		}
	}
}

func TestClaimableStatuses(t *testing.T) {
	claimable := map[JobStatus]bool{
		StatusUploaded:      true,
		StatusAnalysisReady: true,
	}

	for _, s := range AllStatuses {
		if s.IsClaimable() != claimable[s] {
			t.Errorf("IsClaimable(%s) = %v, want %v", s, s.IsClaimable(), claimable[s])
		}
	}
}

func TestInProgressStatuses(t *testing.T) {
	for _, s := range InProgressStatuses {
		if !s.IsInProgress() {
			t.Errorf("IsInProgress(%s) = false for a listed status", s)
		}
	}

	// Ingest, claimable, and terminal statuses are never worker-reportable.
	for _, s := range []JobStatus{
		StatusCreated, StatusUploading, StatusUploaded, StatusAnalysisReady,
		StatusReady, StatusFailed,
	} {
		if s.IsInProgress() {
			t.Errorf("IsInProgress(%s) = true", s)
		}
	}
}

func TestClaimTarget(t *testing.T) {
	if next, ok := ClaimTarget(StatusUploaded); !ok || next != StatusClaimed {
		t.Errorf("ClaimTarget(uploaded) = %s, %v", next, ok)
	}
	if next, ok := ClaimTarget(StatusAnalysisReady); !ok || next != StatusPlanning {
		t.Errorf("ClaimTarget(analysis_ready) = %s, %v", next, ok)
	}
	if _, ok := ClaimTarget(StatusRendering); ok {
		t.Error("ClaimTarget(rendering) should not exist")
	}
}

func TestTerminalStatusesHaveNoForwardEdges(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.IsTerminal() {
			continue
		}
		if len(Transitions[s]) != 0 {
			t.Errorf("terminal status %s has outgoing edges", s)
		}
		for _, to := range AllStatuses {
			if CanTransition(s, to) {
				t.Errorf("CanTransition(%s, %s) allowed out of a terminal status", s, to)
			}
		}
	}
}

func TestFailedReachableFromAnyNonTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		want := !s.IsTerminal()
		if CanTransition(s, StatusFailed) != want {
			t.Errorf("CanTransition(%s, failed) = %v, want %v", s, !want, want)
		}
	}
}

func TestTransitionEdgesStayInStatusSet(t *testing.T) {
	for from, nexts := range Transitions {
		if _, ok := ParseStatus(string(from)); !ok {
			t.Errorf("transition source %s not in status set", from)
		}
		for _, to := range nexts {
			if _, ok := ParseStatus(string(to)); !ok {
				t.Errorf("transition %s -> %s targets unknown status", from, to)
			}
		}
	}
}

func TestRenderingStarted(t *testing.T) {
	started := map[JobStatus]bool{
		StatusRendering:        true,
		StatusPolishing:        true,
		StatusUploadingOutputs: true,
		StatusReady:            true,
	}
	for _, s := range AllStatuses {
		if s.RenderingStarted() != started[s] {
			t.Errorf("RenderingStarted(%s) = %v, want %v", s, s.RenderingStarted(), started[s])
		}
	}
}

func TestParsePlanKind(t *testing.T) {
	for _, k := range AllPlanKinds {
		if _, ok := ParsePlanKind(string(k)); !ok {
			t.Errorf("ParsePlanKind(%q) rejected a known kind", k)
		}
	}
	if _, ok := ParsePlanKind("storyboard"); ok {
		t.Error("ParsePlanKind accepted an unknown kind")
	}
}

func TestDownstreamPlanKindsExcludeAnalysisOutputs(t *testing.T) {
	for _, k := range DownstreamPlanKinds {
		if k == PlanSceneMap || k == PlanFilmIdentity {
			t.Errorf("analysis output %s must survive plan regeneration", k)
		}
	}
}

func TestPlanLinks(t *testing.T) {
	job := &TrailerJob{}
	id := "plan-1"

	for _, kind := range AllPlanKinds {
		if job.PlanID(kind) != nil {
			t.Errorf("fresh job has %s link", kind)
		}
		job.SetPlanID(kind, &id)
		if got := job.PlanID(kind); got == nil || *got != id {
			t.Errorf("PlanID(%s) = %v after set", kind, got)
		}
		job.SetPlanID(kind, nil)
		if job.PlanID(kind) != nil {
			t.Errorf("PlanID(%s) not cleared", kind)
		}
	}
}

func TestLockHelpers(t *testing.T) {
	job := &TrailerJob{}
	if job.Locked() {
		t.Error("unlocked job reported as locked")
	}

	worker := "worker-a"
	job.ProcessingLockID = &worker
	if !job.Locked() {
		t.Error("locked job reported as unlocked")
	}
	if !job.LockedBy("worker-a") {
		t.Error("LockedBy rejected the lock holder")
	}
	if job.LockedBy("worker-b") {
		t.Error("LockedBy accepted a non-holder")
	}
}
