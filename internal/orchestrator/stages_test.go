package orchestrator

import "testing"

func TestPipelineForPresetsSkipPlanning(t *testing.T) {
	for _, taskType := range []string{"sync-with-main", "add-tests", "review-polish", "fix-lint"} {
		pipeline := PipelineFor(taskType)
		for _, s := range pipeline {
			if s == StagePlan {
				t.Fatalf("preset %q should not include the plan stage", taskType)
			}
		}
	}
}

func TestPipelineForDefaultIncludesAllElevenStages(t *testing.T) {
	pipeline := PipelineFor("implement")
	if len(pipeline) != len(DefaultPipeline) {
		t.Fatalf("got %d stages, want %d", len(pipeline), len(DefaultPipeline))
	}
}
