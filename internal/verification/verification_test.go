package verification_test

import (
	"context"
	"sync"
	"testing"

	"porter/internal/bulkjob"
	"porter/internal/logging"
	"porter/internal/notifications"
	"porter/internal/records"
	"porter/internal/services"
	"porter/internal/services/cms"
	"porter/internal/stage"
	"porter/internal/testsupport"
	"porter/internal/verification"
)

type fakePoller struct {
	passes  [][]bulkjob.Outcome
	submits [][]string
	err     error
}

func (f *fakePoller) Submit(ctx context.Context, paths []string, op cms.Operation, opContext map[string]string) (bulkjob.Result, error) {
	f.submits = append(f.submits, paths)
	result := bulkjob.Result{Outcomes: make([]bulkjob.Outcome, len(paths))}
	for i, path := range paths {
		result.Outcomes[i] = bulkjob.Outcome{Path: path}
	}
	if len(f.passes) > 0 {
		byPath := make(map[string]bulkjob.Outcome)
		for _, outcome := range f.passes[0] {
			byPath[outcome.Path] = outcome
		}
		f.passes = f.passes[1:]
		for i := range result.Outcomes {
			if resolved, ok := byPath[result.Outcomes[i].Path]; ok {
				result.Outcomes[i] = resolved
			}
		}
	}
	return result, f.err
}

func verifyingProject(t *testing.T, store *records.Store, tracked []string) *records.Project {
	t.Helper()
	ctx := context.Background()
	project := testsupport.NewProject(t, store, "/content/acme/launch")
	for _, transition := range []struct {
		from, to records.ProjectStatus
		stage    string
	}{
		{records.ProjectQueued, records.ProjectDiscovered, "discovery"},
		{records.ProjectDiscovered, records.ProjectTransformed, "transforming"},
		{records.ProjectTransformed, records.ProjectCopied, "copying"},
		{records.ProjectCopied, records.ProjectPromoted, "promoting"},
		{records.ProjectPromoted, records.ProjectVerifying, "verification"},
	} {
		if _, err := store.AdvanceProject(ctx, project.ID, transition.from, transition.to, transition.stage, "stage finished"); err != nil {
			t.Fatalf("AdvanceProject: %v", err)
		}
	}
	if len(tracked) > 0 {
		if err := store.AppendTracking(ctx, project.ID, tracked); err != nil {
			t.Fatalf("AppendTracking: %v", err)
		}
	}
	refreshed, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	return refreshed
}

func trackingByPath(t *testing.T, store *records.Store, projectID int64) map[string]*records.TrackingEntry {
	t.Helper()
	entries, err := store.TrackingForProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("TrackingForProject: %v", err)
	}
	byPath := make(map[string]*records.TrackingEntry, len(entries))
	for _, entry := range entries {
		byPath[entry.FilePath] = entry
	}
	return byPath
}

func TestExecuteResolvesAllTrackingAndCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := verifyingProject(t, store, []string{"/dst/a", "/dst/b"})
	poller := &fakePoller{passes: [][]bulkjob.Outcome{{
		{Path: "/dst/a", Success: true, ResourcePath: "/content/a"},
		{Path: "/dst/b", Success: true, ResourcePath: "/content/b"},
	}}}

	v := verification.NewWithDependencies(cfg, store, logging.NewNop(), poller, nil)
	if err := v.Execute(ctx, &stage.Work{Project: project}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(poller.submits) != 1 {
		t.Fatalf("clean pass submitted %d times", len(poller.submits))
	}

	byPath := trackingByPath(t, store, project.ID)
	if byPath["/dst/a"].PreviewStatus != records.PreviewCompleted || byPath["/dst/a"].ResourcePath != "/content/a" {
		t.Fatalf("unexpected tracking %+v", byPath["/dst/a"])
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectCompleted {
		t.Fatalf("project status %s, want completed", got.Status)
	}
}

func TestSecondPassIsAuthoritative(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := verifyingProject(t, store, []string{"/dst/a", "/dst/b"})
	poller := &fakePoller{passes: [][]bulkjob.Outcome{
		{
			{Path: "/dst/a", Success: true, ResourcePath: "/content/a"},
			{Path: "/dst/b", Success: false},
		},
		{
			{Path: "/dst/b", Success: true, ResourcePath: "/content/b"},
		},
	}}

	v := verification.NewWithDependencies(cfg, store, logging.NewNop(), poller, nil)
	if err := v.Execute(ctx, &stage.Work{Project: project}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(poller.submits) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(poller.submits))
	}
	// The retry submits only the failed subset.
	if len(poller.submits[1]) != 1 || poller.submits[1][0] != "/dst/b" {
		t.Fatalf("unexpected second-pass paths %v", poller.submits[1])
	}

	byPath := trackingByPath(t, store, project.ID)
	if byPath["/dst/b"].PreviewStatus != records.PreviewCompleted {
		t.Fatalf("second-pass success not applied: %+v", byPath["/dst/b"])
	}

	// Recovered path has a first-pass ledger entry but no terminal one.
	firstPass, err := store.RetryEntries(ctx, project.ID, "verification", 1)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(firstPass) != 1 || firstPass[0].Path != "/dst/b" {
		t.Fatalf("unexpected first-pass ledger %+v", firstPass)
	}
	terminal, err := store.RetryEntries(ctx, project.ID, "verification", 2)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(terminal) != 0 {
		t.Fatalf("recovered path recorded as terminal: %+v", terminal)
	}
}

func TestTerminalFailuresNeverBlockCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := verifyingProject(t, store, []string{"/dst/a", "/dst/b"})
	poller := &fakePoller{passes: [][]bulkjob.Outcome{
		{
			{Path: "/dst/a", Success: true, ResourcePath: "/content/a"},
			{Path: "/dst/b", Success: false},
		},
		{
			{Path: "/dst/b", Success: false},
		},
	}}

	v := verification.NewWithDependencies(cfg, store, logging.NewNop(), poller, nil)
	if err := v.Execute(ctx, &stage.Work{Project: project}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	byPath := trackingByPath(t, store, project.ID)
	if byPath["/dst/b"].PreviewStatus != records.PreviewFailed {
		t.Fatalf("failed path not finalized: %+v", byPath["/dst/b"])
	}
	terminal, err := store.RetryEntries(ctx, project.ID, "verification", 2)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(terminal) != 1 || terminal[0].Path != "/dst/b" {
		t.Fatalf("terminal failure not listed exactly once: %+v", terminal)
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectCompleted {
		t.Fatalf("terminal failure blocked completion: %s", got.Status)
	}
}

func TestAuthFailureSkipsSecondPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := verifyingProject(t, store, []string{"/dst/a"})
	poller := &fakePoller{err: services.Wrap(services.ErrAuth, "cms", "request", "http 401", nil)}

	v := verification.NewWithDependencies(cfg, store, logging.NewNop(), poller, nil)
	if err := v.Execute(ctx, &stage.Work{Project: project}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(poller.submits) != 1 {
		t.Fatalf("auth failure triggered a retry pass: %d submits", len(poller.submits))
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectCompleted {
		t.Fatalf("project stuck after auth failure: %s", got.Status)
	}
}

func TestNothingToVerifyCompletesImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := verifyingProject(t, store, nil)
	poller := &fakePoller{}

	v := verification.NewWithDependencies(cfg, store, logging.NewNop(), poller, nil)
	if err := v.Execute(ctx, &stage.Work{Project: project}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(poller.submits) != 0 {
		t.Fatalf("empty tracking still submitted: %v", poller.submits)
	}
	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Status != records.ProjectCompleted {
		t.Fatalf("project status %s, want completed", got.Status)
	}
}

// recordingNotifier captures published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last = payload
	return nil
}

func TestCompletionPublishesNotification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	project := verifyingProject(t, store, []string{"/dst/a", "/dst/b"})
	poller := &fakePoller{passes: [][]bulkjob.Outcome{
		{
			{Path: "/dst/a", Success: true, ResourcePath: "/content/a"},
			{Path: "/dst/b"},
		},
		{
			{Path: "/dst/b"},
		},
	}}
	notifier := &recordingNotifier{}

	v := verification.NewWithDependencies(cfg, store, logging.NewNop(), poller, notifier)
	if err := v.Execute(ctx, &stage.Work{Project: project}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventProjectCompleted {
		t.Fatalf("published events = %v, want one project-completed", notifier.events)
	}
	if notifier.last["verified"] != "1" || notifier.last["failed"] != "1" {
		t.Fatalf("unexpected completion payload %v", notifier.last)
	}
	if notifier.last["projectPath"] != project.ProjectPath {
		t.Fatalf("completion payload path = %q", notifier.last["projectPath"])
	}
}
