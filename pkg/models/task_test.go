package models

import "testing"

func TestExecutionMode_Valid(t *testing.T) {
	tests := []struct {
		name string
		mode ExecutionMode
		want bool
	}{
		{"parallel is valid", ModeParallel, true},
		{"sequential is valid", ModeSequential, true},
		{"mixed is valid", ModeMixed, true},
		{"empty is invalid", ExecutionMode(""), false},
		{"uppercase is invalid", ExecutionMode("PARALLEL"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.Valid(); got != tt.want {
				t.Errorf("ExecutionMode(%q).Valid() = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestTask_HasDependencies(t *testing.T) {
	if (Task{ID: "task-1"}).HasDependencies() {
		t.Error("task without DependsOn should report no dependencies")
	}
	if !(Task{ID: "task-2", DependsOn: []string{"task-1"}}).HasDependencies() {
		t.Error("task with DependsOn should report dependencies")
	}
}

func TestDecompositionResult_TaskByID(t *testing.T) {
	d := DecompositionResult{
		Kind: KindCompound,
		Tasks: []Task{
			{ID: "task-1", AgentName: "vision", Priority: 1},
			{ID: "task-2", AgentName: "technical", Priority: 2, DependsOn: []string{"task-1"}},
		},
		ExecutionMode: ModeSequential,
	}

	got, ok := d.TaskByID("task-2")
	if !ok {
		t.Fatal("expected task-2 to be found")
	}
	if got.AgentName != "technical" {
		t.Errorf("AgentName = %q, want %q", got.AgentName, "technical")
	}

	if _, ok := d.TaskByID("task-9"); ok {
		t.Error("expected task-9 to be missing")
	}
}
