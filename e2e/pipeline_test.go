package e2e

import (
	"net/http"
	"testing"
)

func TestWorkerSurfaceRequiresSecret(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/worker/jobs/claimable", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)

	resp, err = doRequest(ta.app, http.MethodGet, "/worker/jobs/claimable", "", map[string]string{
		"X-Worker-Secret": "wrong",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestClaimFlow(t *testing.T) {
	ta := setupApp(t)
	jobID := createUploadedJob(t, ta.app)

	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w1"}`)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["claimed"] != true {
		t.Fatalf("claim refused: %v", result)
	}

	// A second worker gets a structured refusal, still HTTP 200.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w2"}`)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result = parseJSON(t, resp)
	if result["claimed"] != false {
		t.Errorf("second claim succeeded: %v", result)
	}
	if result["reason"] == "" {
		t.Error("refusal carries no reason")
	}
}

func TestClaimUnknownJob(t *testing.T) {
	ta := setupApp(t)

	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/nope/claim", `{"workerId":"w1"}`)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["claimed"] != false {
		t.Errorf("claim on unknown job succeeded: %v", result)
	}
}

func TestClaimableList(t *testing.T) {
	ta := setupApp(t)
	createUploadedJob(t, ta.app)

	resp, err := doWorkerRequest(t, ta.app, http.MethodGet, "/worker/jobs/claimable", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	jobs, ok := body["jobs"].([]interface{})
	if !ok || len(jobs) != 1 {
		t.Errorf("claimable jobs = %v", body["jobs"])
	}
}

func TestStatusUpdateValidation(t *testing.T) {
	ta := setupApp(t)
	jobID := createUploadedJob(t, ta.app)

	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w1"}`)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	// Unknown status string is rejected outright.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/status", `{"status":"exploded"}`)
	if err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	// Terminal statuses only land through complete/fail.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/status", `{"status":"ready"}`)
	if err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)

	// Claimable statuses only land through release; a report must not unlock
	// the job out from under the claim.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/status", `{"status":"uploaded"}`)
	if err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)

	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/status", `{"status":"transcribing","progress":25,"currentStep":"extracting audio"}`)
	if err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	job := parseJSON(t, resp)
	if job["status"] != "transcribing" {
		t.Errorf("status = %v", job["status"])
	}
}

func TestPlanUpsertAndDetails(t *testing.T) {
	ta := setupApp(t)
	jobID := createUploadedJob(t, ta.app)

	if resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w1"}`); err != nil {
		t.Fatalf("claim failed: %v", err)
	} else {
		assertStatus(t, resp, http.StatusOK)
	}

	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/plans/scene_map", `{"data":{"scenes":[1,2,3]}}`)
	if err != nil {
		t.Fatalf("plan upsert failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	plan := parseJSON(t, resp)
	if plan["revision"] != float64(1) {
		t.Errorf("revision = %v, want 1", plan["revision"])
	}

	// Unknown kinds never reach the store.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/plans/storyboard", `{"data":{}}`)
	if err != nil {
		t.Fatalf("plan upsert failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	resp, err = doWorkerRequest(t, ta.app, http.MethodGet, "/worker/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("details failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	details := parseJSON(t, resp)
	plans, ok := details["plans"].(map[string]interface{})
	if !ok {
		t.Fatalf("no plans in details: %v", details)
	}
	if _, ok := plans["scene_map"]; !ok {
		t.Errorf("scene_map missing from details: %v", plans)
	}
}

func TestCompleteFlow(t *testing.T) {
	ta := setupApp(t)
	jobID := createUploadedJob(t, ta.app)

	if resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w1"}`); err != nil {
		t.Fatalf("claim failed: %v", err)
	} else {
		assertStatus(t, resp, http.StatusOK)
	}

	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/clips", `{"outputKey":"outputs/trailer.mp4","durationSeconds":92.5,"width":1920,"height":1080}`)
	if err != nil {
		t.Fatalf("clip failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/complete", "")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	job := parseJSON(t, resp)
	if job["status"] != "ready" {
		t.Errorf("status = %v, want ready", job["status"])
	}
	if job["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", job["progress"])
	}

	// Completing a failed-at-birth job is a conflict; completing ready again is not.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/complete", "")
	if err != nil {
		t.Fatalf("repeat complete failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
}

func TestFailFlow(t *testing.T) {
	ta := setupApp(t)
	jobID := createUploadedJob(t, ta.app)

	if resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w1"}`); err != nil {
		t.Fatalf("claim failed: %v", err)
	} else {
		assertStatus(t, resp, http.StatusOK)
	}

	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/fail", `{"error":"ffmpeg exited 1","errorStage":"rendering"}`)
	if err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	job := parseJSON(t, resp)
	if job["status"] != "failed" {
		t.Errorf("status = %v, want failed", job["status"])
	}
	if job["error"] != "ffmpeg exited 1" {
		t.Errorf("error = %v", job["error"])
	}

	// Terminal: no further worker progress.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/status", `{"status":"rendering"}`)
	if err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestReleaseFlow(t *testing.T) {
	ta := setupApp(t)
	jobID := createUploadedJob(t, ta.app)

	if resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w1"}`); err != nil {
		t.Fatalf("claim failed: %v", err)
	} else {
		assertStatus(t, resp, http.StatusOK)
	}

	// Only the lock holder may release.
	resp, err := doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/release", `{"workerId":"w2"}`)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["released"] != false {
		t.Errorf("non-holder release succeeded: %v", result)
	}

	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/release", `{"workerId":"w1"}`)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result = parseJSON(t, resp)
	if result["released"] != true {
		t.Errorf("holder release refused: %v", result)
	}

	// The job is claimable again.
	resp, err = doWorkerRequest(t, ta.app, http.MethodPost, "/worker/jobs/"+jobID+"/claim", `{"workerId":"w2"}`)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result = parseJSON(t, resp)
	if result["claimed"] != true {
		t.Errorf("reclaim refused: %v", result)
	}
}

func TestCapacity(t *testing.T) {
	ta := setupApp(t)

	resp, err := doWorkerRequest(t, ta.app, http.MethodGet, "/worker/capacity", "")
	if err != nil {
		t.Fatalf("capacity failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	capacity := parseJSON(t, resp)
	if capacity["globalRenderCap"] != float64(10) {
		t.Errorf("globalRenderCap = %v", capacity["globalRenderCap"])
	}
	if capacity["atCapacity"] != false {
		t.Errorf("atCapacity = %v", capacity["atCapacity"])
	}
}
