package model

// JobStatus is the single source of truth for a job's pipeline position.
type JobStatus string

const (
	// Ingest
	StatusCreated   JobStatus = "created"
	StatusUploading JobStatus = "uploading"
	StatusUploaded  JobStatus = "uploaded"

	// Analysis
	StatusClaimed          JobStatus = "claimed"
	StatusProxyGenerating  JobStatus = "proxy_generating"
	StatusTranscribing     JobStatus = "transcribing"
	StatusSceneDetecting   JobStatus = "scene_detecting"
	StatusClassifyingEarly JobStatus = "classifying_early"
	StatusAnalyzing        JobStatus = "analyzing"
	StatusClassifyingFull  JobStatus = "classifying_full"
	StatusAnalysisReady    JobStatus = "analysis_ready"

	// Synthesis
	StatusPlanning  JobStatus = "planning"
	StatusPlanReady JobStatus = "plan_ready"

	// Audio (optional branch)
	StatusAudioPlanning   JobStatus = "audio_planning"
	StatusMusicGenerating JobStatus = "music_generating"
	StatusSFXGenerating   JobStatus = "sfx_generating"
	StatusTitleCards      JobStatus = "title_cards"
	StatusVOGenerating    JobStatus = "vo_generating"
	StatusAudioReady      JobStatus = "audio_ready"
	StatusMixing          JobStatus = "mixing"

	// Render
	StatusRendering        JobStatus = "rendering"
	StatusPolishing        JobStatus = "polishing"
	StatusUploadingOutputs JobStatus = "uploading_outputs"

	// Terminal
	StatusReady  JobStatus = "ready"
	StatusFailed JobStatus = "failed"
)

// AllStatuses lists every status in pipeline order.
var AllStatuses = []JobStatus{
	StatusCreated, StatusUploading, StatusUploaded,
	StatusClaimed, StatusProxyGenerating, StatusTranscribing, StatusSceneDetecting,
	StatusClassifyingEarly, StatusAnalyzing, StatusClassifyingFull, StatusAnalysisReady,
	StatusPlanning, StatusPlanReady,
	StatusAudioPlanning, StatusMusicGenerating, StatusSFXGenerating, StatusTitleCards,
	StatusVOGenerating, StatusAudioReady, StatusMixing,
	StatusRendering, StatusPolishing, StatusUploadingOutputs,
	StatusReady, StatusFailed,
}

var statusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(AllStatuses))
	for _, s := range AllStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// ParseStatus validates an inbound status string against the closed status set.
// Unknown values are never persisted.
func ParseStatus(s string) (JobStatus, bool) {
	status := JobStatus(s)
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// IsClaimable reports whether a worker may claim a job in this status. Only the
// two macro-phase entry points qualify; everything in between is reached by
// worker-reported status updates from the current claimant.
func (s JobStatus) IsClaimable() bool {
	return s == StatusUploaded || s == StatusAnalysisReady
}

// ClaimableStatuses in polling order: analysis entry first, then synthesis/render.
var ClaimableStatuses = []JobStatus{StatusUploaded, StatusAnalysisReady}

// claimEntry maps a claimable status to the status a successful claim advances to.
var claimEntry = map[JobStatus]JobStatus{
	StatusUploaded:      StatusClaimed,
	StatusAnalysisReady: StatusPlanning,
}

// ClaimTarget returns the deterministic post-claim status for a claimable status.
func ClaimTarget(s JobStatus) (JobStatus, bool) {
	next, ok := claimEntry[s]
	return next, ok
}

// InProgressStatuses are the worker-driven statuses a claimed job moves
// through. A lock is only ever held while the job is in one of these; the
// ingest and claimable statuses are reached through their own operations, so
// status reports are confined to this set.
var InProgressStatuses = []JobStatus{
	StatusClaimed, StatusProxyGenerating, StatusTranscribing, StatusSceneDetecting,
	StatusClassifyingEarly, StatusAnalyzing, StatusClassifyingFull,
	StatusPlanning, StatusPlanReady,
	StatusAudioPlanning, StatusMusicGenerating, StatusSFXGenerating, StatusTitleCards,
	StatusVOGenerating, StatusAudioReady, StatusMixing,
	StatusRendering, StatusPolishing, StatusUploadingOutputs,
}

var inProgressSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(InProgressStatuses))
	for _, s := range InProgressStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// IsInProgress reports whether a worker may report this status while holding
// the lock.
func (s JobStatus) IsInProgress() bool {
	_, ok := inProgressSet[s]
	return ok
}

// RenderStatuses are the expensive render macro-phase statuses counted by the
// per-user concurrency governor.
var RenderStatuses = []JobStatus{StatusRendering, StatusUploadingOutputs}

// RenderingStarted reports whether the job has entered the render macro-phase
// (or finished). Creative profile changes are blocked from this point on.
func (s JobStatus) RenderingStarted() bool {
	switch s {
	case StatusRendering, StatusPolishing, StatusUploadingOutputs, StatusReady:
		return true
	}
	return false
}

// Transitions is the forward edge set of the status graph. The two documented
// backward edges (release to a claimable status, plan regeneration back to
// analysis_ready) are modeled by their operations, not listed here. failed is
// reachable from every non-terminal status and is handled in CanTransition.
var Transitions = map[JobStatus][]JobStatus{
	StatusCreated:          {StatusUploading, StatusUploaded},
	StatusUploading:        {StatusUploaded},
	StatusUploaded:         {StatusClaimed},
	StatusClaimed:          {StatusProxyGenerating},
	StatusProxyGenerating:  {StatusTranscribing},
	StatusTranscribing:     {StatusSceneDetecting},
	StatusSceneDetecting:   {StatusClassifyingEarly},
	StatusClassifyingEarly: {StatusAnalyzing},
	StatusAnalyzing:        {StatusClassifyingFull},
	StatusClassifyingFull:  {StatusAnalysisReady},
	StatusAnalysisReady:    {StatusPlanning},
	StatusPlanning:         {StatusPlanReady},
	StatusPlanReady:        {StatusAudioPlanning, StatusRendering},
	StatusAudioPlanning:    {StatusMusicGenerating},
	StatusMusicGenerating:  {StatusSFXGenerating},
	StatusSFXGenerating:    {StatusTitleCards},
	StatusTitleCards:       {StatusVOGenerating},
	StatusVOGenerating:     {StatusAudioReady},
	StatusAudioReady:       {StatusMixing},
	StatusMixing:           {StatusRendering},
	StatusRendering:        {StatusPolishing},
	StatusPolishing:        {StatusUploadingOutputs},
	StatusUploadingOutputs: {StatusReady},
}

// CanTransition reports whether from→to is an edge of the forward graph.
func CanTransition(from, to JobStatus) bool {
	if to == StatusFailed {
		return !from.IsTerminal()
	}
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PlanKind identifies a singleton pipeline artifact. Clips are append-only and
// handled separately.
type PlanKind string

const (
	PlanSceneMap     PlanKind = "scene_map"
	PlanTimestamp    PlanKind = "timestamp_plan"
	PlanTextCard     PlanKind = "text_card_plan"
	PlanAudio        PlanKind = "audio_plan"
	PlanFilmIdentity PlanKind = "film_identity"
	PlanNarration    PlanKind = "narration_plan"
	PlanEffects      PlanKind = "effects_plan"
	PlanWorkflow     PlanKind = "workflow_plan"
	PlanSelection    PlanKind = "selection_plan"
)

// AllPlanKinds in pipeline order.
var AllPlanKinds = []PlanKind{
	PlanSceneMap, PlanFilmIdentity, PlanTimestamp, PlanTextCard, PlanAudio,
	PlanNarration, PlanEffects, PlanWorkflow, PlanSelection,
}

var planKindSet = func() map[PlanKind]struct{} {
	set := make(map[PlanKind]struct{}, len(AllPlanKinds))
	for _, k := range AllPlanKinds {
		set[k] = struct{}{}
	}
	return set
}()

// ParsePlanKind validates an inbound plan kind string.
func ParsePlanKind(s string) (PlanKind, bool) {
	kind := PlanKind(s)
	_, ok := planKindSet[kind]
	return kind, ok
}

// DownstreamPlanKinds are the artifacts cleared by plan regeneration. Analysis
// outputs (scene map, film identity) survive so analysis is not re-run.
var DownstreamPlanKinds = []PlanKind{
	PlanTimestamp, PlanTextCard, PlanAudio, PlanNarration,
	PlanEffects, PlanWorkflow, PlanSelection,
}
