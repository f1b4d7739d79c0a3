// Package orchestrator drives a ticket's task through the fixed pipeline
// of subprocess stages, persisting each as a child AgentRun and advancing
// the ticket's column between phases.
package orchestrator

// Stage names the pipeline steps run, in order, for a standard implement
// task. Preset task types (sync-with-main, add-tests, review-polish,
// fix-lint) splice into or skip segments of this chain.
type Stage string

const (
	StageBranch         Stage = "branch"
	StagePlan           Stage = "plan"
	StageImplement      Stage = "implement"
	StageDeslop         Stage = "deslop"
	StageCleanup1       Stage = "cleanup"
	StageUnitTests      Stage = "unit-tests"
	StageCleanup2       Stage = "cleanup"
	StageReviewChanges1 Stage = "review-changes"
	StageCleanup3       Stage = "cleanup"
	StageReviewChanges2 Stage = "review-changes"
	StageAddAndCommit   Stage = "add-and-commit"
)

// DefaultPipeline is the full 11-stage chain for a plan-driven implement task.
var DefaultPipeline = []Stage{
	StageBranch,
	StagePlan,
	StageImplement,
	StageDeslop,
	StageCleanup1,
	StageUnitTests,
	StageCleanup2,
	StageReviewChanges1,
	StageCleanup3,
	StageReviewChanges2,
	StageAddAndCommit,
}

// PipelineFor returns the stage chain for a task type, implementing the
// presets documented in SPEC_FULL.md §4.4: sync-with-main, add-tests,
// review-polish and fix-lint already embed their own instructions, so
// each skips the planning stage, and some skip other stages entirely.
func PipelineFor(taskType string) []Stage {
	switch taskType {
	case "sync-with-main":
		return []Stage{StageBranch, StageImplement, StageDeslop, StageCleanup1, StageUnitTests,
			StageReviewChanges1, StageAddAndCommit}
	case "add-tests":
		return []Stage{StageBranch, StageImplement, StageUnitTests, StageReviewChanges1, StageAddAndCommit}
	case "review-polish":
		return []Stage{StageBranch, StageReviewChanges1, StageReviewChanges2, StageAddAndCommit}
	case "fix-lint":
		return []Stage{StageBranch, StageCleanup1, StageAddAndCommit}
	default:
		return DefaultPipeline
	}
}
