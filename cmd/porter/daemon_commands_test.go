package main

import (
	"context"
	"testing"
)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	ctx := context.Background()
	if _, err := env.store.CreateProject(ctx, "/content/site-a", "summer-launch", nil); err != nil {
		t.Fatalf("create project: %v", err)
	}
	second, err := env.store.CreateProject(ctx, "/content/site-b", "summer-launch", nil)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := env.store.PauseProject(ctx, second.ID); err != nil {
		t.Fatalf("pause project: %v", err)
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Service Endpoints")
	requireContains(t, out, "Projects")
	requireContains(t, out, "Paused")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Daemon already running")
}
