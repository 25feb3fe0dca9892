package jobs

import "testing"

func TestBuildStageResultAllSucceeded(t *testing.T) {
	tasks := []*Task{
		{TaskID: "a", Status: TaskCompleted},
		{TaskID: "b", Status: TaskCompleted},
	}
	res := BuildStageResult(1, tasks)
	if res.Status != StageCompleted {
		t.Fatalf("status: want=%s got=%s", StageCompleted, res.Status)
	}
	if res.SuccessfulTasks != 2 || res.FailedTasks != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.SuccessRate != 1.0 {
		t.Fatalf("success_rate: want=1.0 got=%v", res.SuccessRate)
	}
	if res.StageKey != "1" {
		t.Fatalf("stage_key: want=1 got=%s", res.StageKey)
	}
}

func TestBuildStageResultAllFailed(t *testing.T) {
	tasks := []*Task{
		{TaskID: "a", Status: TaskFailed},
		{TaskID: "b", Status: TaskFailed},
	}
	res := BuildStageResult(1, tasks)
	if res.Status != StageFailed {
		t.Fatalf("status: want=%s got=%s", StageFailed, res.Status)
	}
	if res.SuccessRate != 0.0 {
		t.Fatalf("success_rate: want=0.0 got=%v", res.SuccessRate)
	}
}

func TestBuildStageResultMixedIsCompletedWithErrors(t *testing.T) {
	tasks := []*Task{
		{TaskID: "a", Status: TaskCompleted},
		{TaskID: "b", Status: TaskFailed},
	}
	res := BuildStageResult(1, tasks)
	if res.Status != StageCompletedWithErrors {
		t.Fatalf("status: want=%s got=%s", StageCompletedWithErrors, res.Status)
	}
	if res.SuccessfulTasks != 1 || res.FailedTasks != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestBuildStageResultNoTasksIsFailed(t *testing.T) {
	res := BuildStageResult(1, nil)
	if res.Status != StageFailed {
		t.Fatalf("status: want=%s got=%s", StageFailed, res.Status)
	}
	if res.TaskCount != 0 {
		t.Fatalf("task_count: want=0 got=%d", res.TaskCount)
	}
}

func TestStageKeyOf(t *testing.T) {
	if got := StageKeyOf(3); got != "3" {
		t.Fatalf("StageKeyOf(3): want=3 got=%s", got)
	}
}
