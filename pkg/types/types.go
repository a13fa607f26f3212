package types

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusPending       CampaignStatus = "pending"
	CampaignStatusStage1Running CampaignStatus = "stage1_running"
	CampaignStatusStage2Running CampaignStatus = "stage2_running"
	CampaignStatusStage3Running CampaignStatus = "stage3_running"
	CampaignStatusCompleted     CampaignStatus = "completed"
	CampaignStatusFailed        CampaignStatus = "failed"
)

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusPending:       {CampaignStatusStage1Running, CampaignStatusFailed},
	CampaignStatusStage1Running: {CampaignStatusStage2Running, CampaignStatusFailed},
	CampaignStatusStage2Running: {CampaignStatusStage3Running, CampaignStatusFailed},
	CampaignStatusStage3Running: {CampaignStatusCompleted, CampaignStatusFailed},
}

// IsTerminal reports whether no further transition is possible.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// IsRunning reports whether a stage is executing.
func (s CampaignStatus) IsRunning() bool {
	switch s {
	case CampaignStatusStage1Running, CampaignStatusStage2Running, CampaignStatusStage3Running:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next. Re-writing the same state is allowed.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StageKind names the record kind a stage persists.
type StageKind string

const (
	StageKindResearch  StageKind = "research"
	StageKindAnalytics StageKind = "analytics"
	StageKindContent   StageKind = "content"
)

// StageKinds lists the record kinds in stage order.
var StageKinds = []StageKind{StageKindResearch, StageKindAnalytics, StageKindContent}

// Stage is a pipeline position, 1 through 3.
type Stage int

const (
	StageResearch Stage = iota + 1
	StageStrategy
	StageCreative
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{StageResearch, StageStrategy, StageCreative}

func (s Stage) String() string {
	switch s {
	case StageResearch:
		return "research"
	case StageStrategy:
		return "strategy"
	case StageCreative:
		return "creative"
	default:
		return "unknown"
	}
}

// Kind is the record kind the stage writes.
func (s Stage) Kind() StageKind {
	switch s {
	case StageResearch:
		return StageKindResearch
	case StageStrategy:
		return StageKindAnalytics
	default:
		return StageKindContent
	}
}

// RunningStatus is the campaign status while s executes.
func (s Stage) RunningStatus() CampaignStatus {
	switch s {
	case StageResearch:
		return CampaignStatusStage1Running
	case StageStrategy:
		return CampaignStatusStage2Running
	default:
		return CampaignStatusStage3Running
	}
}

// Milestone is the progress percentage reached once s has finished.
func (s Stage) Milestone() int {
	switch s {
	case StageResearch:
		return 25
	case StageStrategy:
		return 50
	default:
		return 100
	}
}
