package main

import (
	"testing"
)

func TestCoursesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"courses"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("courses failed: %v", err)
	}
	requireContains(t, stdout, "No courses tracked yet")

	stdout, _, err = runCLI(t, []string{"run-once"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("run-once failed: %v", err)
	}
	requireContains(t, stdout, "new: 1")

	stdout, _, err = runCLI(t, []string{"courses", "--limit", "5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("courses after run-once failed: %v", err)
	}
	requireContains(t, stdout, "Intro to Go")
	requireContains(t, stdout, "yes")

	if _, _, err := runCLI(t, []string{"courses", "--limit", "-1"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("negative limit should be rejected")
	}
}
