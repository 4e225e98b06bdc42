package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rhoci/rhoci/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, s *Store, key models.BuildKey) {
	t.Helper()
	if _, err := s.EnqueueBuild(context.Background(), key, "", t0); err != nil {
		t.Fatalf("enqueue %s: %v", key, err)
	}
}

func TestSignatureInsertIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	sig := models.FailureSignature{Name: "conn-refused", Category: "infra", Pattern: "ConnectionRefusedError"}

	inserted, err := s.InsertSignatureIfAbsent(ctx, sig)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	changed := sig
	changed.Action = "restart the service"
	inserted, err = s.InsertSignatureIfAbsent(ctx, changed)
	if err != nil || inserted {
		t.Fatalf("second insert: inserted=%v err=%v", inserted, err)
	}

	got, ok, err := s.FindSignature(ctx, "conn-refused")
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(sig, got); diff != "" {
		t.Fatalf("stored signature changed (-want +got):\n%s", diff)
	}
}

func TestSignatureRejectsEmptyPattern(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.InsertSignatureIfAbsent(context.Background(), models.FailureSignature{Name: "empty"}); err == nil {
		t.Fatal("expected check constraint violation")
	}
}

func TestSquadRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	squad := models.Squad{Name: "nova", DFG: "Compute", Components: []string{"openstack-nova", "python-novaclient"}}

	for i := 0; i < 2; i++ {
		if _, err := s.InsertSquadIfAbsent(ctx, squad); err != nil {
			t.Fatalf("insert squad: %v", err)
		}
	}
	squads, err := s.ListSquads(ctx)
	if err != nil {
		t.Fatalf("list squads: %v", err)
	}
	if diff := cmp.Diff([]models.Squad{squad}, squads); diff != "" {
		t.Fatalf("unexpected squads (-want +got):\n%s", diff)
	}
}

func TestEnqueueOnlyOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := models.BuildKey{Job: "rhosp-ci", Number: 42}

	inserted, err := s.EnqueueBuild(ctx, key, "https://jenkins/job/rhosp-ci/42/", t0)
	if err != nil || !inserted {
		t.Fatalf("first enqueue: inserted=%v err=%v", inserted, err)
	}
	inserted, err = s.EnqueueBuild(ctx, key, "https://jenkins/job/rhosp-ci/42/", t0.Add(time.Hour))
	if err != nil || inserted {
		t.Fatalf("second enqueue: inserted=%v err=%v", inserted, err)
	}

	if err := s.CompleteBuild(ctx, models.Build{Job: key.Job, Number: key.Number, Status: models.BuildSuccess}, nil, nil, t0); err != nil {
		t.Fatalf("complete: %v", err)
	}
	inserted, err = s.EnqueueBuild(ctx, key, "", t0)
	if err != nil || inserted {
		t.Fatalf("enqueue after completion: inserted=%v err=%v", inserted, err)
	}
	state, ok, err := s.BuildState(ctx, key)
	if err != nil || !ok || state != models.StateComplete {
		t.Fatalf("unexpected state %q ok=%v err=%v", state, ok, err)
	}
}

func TestDueBuildsHonoursSchedule(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := models.BuildKey{Job: "rhosp-ci", Number: 1}
	b := models.BuildKey{Job: "rhosp-ci", Number: 2}
	enqueue(t, s, a)
	enqueue(t, s, b)

	if err := s.DeferBuild(ctx, a, t0.Add(10*time.Minute), 1, 0, "jenkins: status 503"); err != nil {
		t.Fatalf("defer: %v", err)
	}

	due, err := s.DueBuilds(ctx, t0, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].Key != b {
		t.Fatalf("expected only %s due, got %+v", b, due)
	}

	due, err = s.DueBuilds(ctx, t0.Add(10*time.Minute), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected both builds due, got %+v", due)
	}
	if due[1].Key != a || due[1].Attempts != 1 || due[1].LastError != "jenkins: status 503" {
		t.Fatalf("deferred bookkeeping lost: %+v", due[1])
	}
}

func TestAbandonLeavesPending(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := models.BuildKey{Job: "rhosp-ci", Number: 7}
	enqueue(t, s, key)

	if err := s.AbandonBuild(ctx, key, "not found", t0); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if due, _ := s.DueBuilds(ctx, t0.Add(time.Hour), 10); len(due) != 0 {
		t.Fatalf("abandoned build still due: %+v", due)
	}
	if err := s.AbandonBuild(ctx, key, "again", t0); !errors.Is(err, models.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if err := s.DeferBuild(ctx, key, t0, 1, 1, "x"); !errors.Is(err, models.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestCompleteBuildPersistsEverything(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := models.BuildKey{Job: "rhosp-ci", Number: 42}
	enqueue(t, s, key)

	build := models.Build{
		Job: key.Job, Number: key.Number, Status: models.BuildFailure,
		Timestamp: t0.Add(-time.Hour), Duration: 90 * time.Second,
		ConsoleURL: "https://jenkins/job/rhosp-ci/42/console",
		ReportURL:  "https://jenkins/job/rhosp-ci/42/testReport",
	}
	tests := []models.Test{
		{ClassName: "tempest.api.Net", Name: "test_a", Status: models.TestSuccess, Duration: time.Second},
		{ClassName: "tempest.api.Net", Name: "test_b", Status: models.TestFailure, ErrorDetails: "ConnectionRefusedError"},
	}
	matches := []models.FailureMatch{{
		Build: key, ClassName: "tempest.api.Net", TestName: "test_b", Signature: "conn-refused", Category: "infra",
		Excerpt: "ConnectionRefusedError", Match: models.Span{Start: 0, End: 22}, Evidence: models.Span{Start: 0, End: 22},
	}}

	if err := s.CompleteBuild(ctx, build, tests, matches, t0); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rec, ok, err := s.GetBuild(ctx, key)
	if err != nil || !ok {
		t.Fatalf("get build: ok=%v err=%v", ok, err)
	}
	want := models.BuildRecord{Build: build, State: models.StateComplete, TestCount: 2}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("unexpected build (-want +got):\n%s", diff)
	}

	gotTests, err := s.ListTests(ctx, key)
	if err != nil {
		t.Fatalf("list tests: %v", err)
	}
	if diff := cmp.Diff(tests, gotTests); diff != "" {
		t.Fatalf("unexpected tests (-want +got):\n%s", diff)
	}
	gotMatches, err := s.ListMatches(ctx, key)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if diff := cmp.Diff(matches, gotMatches); diff != "" {
		t.Fatalf("unexpected matches (-want +got):\n%s", diff)
	}

	if err := s.CompleteBuild(ctx, build, nil, nil, t0); !errors.Is(err, models.ErrNotPending) {
		t.Fatalf("expected ErrNotPending on second completion, got %v", err)
	}
}

func TestCompleteBuildIsAllOrNothing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := models.BuildKey{Job: "rhosp-ci", Number: 43}
	enqueue(t, s, key)

	tests := []models.Test{
		{ClassName: "c", Name: "ok", Status: models.TestSuccess},
		{ClassName: "c", Name: "bad", Status: models.TestStatus("exploded")},
	}
	err := s.CompleteBuild(ctx, models.Build{Job: key.Job, Number: key.Number, Status: models.BuildFailure}, tests, nil, t0)
	if err == nil {
		t.Fatal("expected constraint violation")
	}

	state, _, err := s.BuildState(ctx, key)
	if err != nil || state != models.StatePending {
		t.Fatalf("expected build to stay pending, got %q err=%v", state, err)
	}
	got, err := s.ListTests(ctx, key)
	if err != nil {
		t.Fatalf("list tests: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("partial tests visible: %+v", got)
	}
}

func TestCompleteUnknownBuild(t *testing.T) {
	s := setupTestStore(t)
	err := s.CompleteBuild(context.Background(), models.Build{Job: "ghost", Number: 1, Status: models.BuildSuccess}, nil, nil, t0)
	if !errors.Is(err, models.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestTopFailingTestsAndCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for n := 1; n <= 3; n++ {
		key := models.BuildKey{Job: "rhosp-ci", Number: n}
		enqueue(t, s, key)
		status := models.TestFailure
		if n == 3 {
			status = models.TestSuccess
		}
		tests := []models.Test{
			{ClassName: "tempest.api.Net", Name: "test_flaky", Status: status},
			{ClassName: "tempest.api.Net", Name: "test_solid", Status: models.TestSuccess},
		}
		if n == 2 {
			tests = append(tests, models.Test{ClassName: "tempest.api.Vol", Name: "test_once", Status: models.TestFailure})
		}
		if err := s.CompleteBuild(ctx, models.Build{Job: key.Job, Number: key.Number, Status: models.BuildUnstable}, tests, nil, t0); err != nil {
			t.Fatalf("complete %s: %v", key, err)
		}
	}
	enqueue(t, s, models.BuildKey{Job: "rhosp-ci", Number: 4})

	stats, err := s.TopFailingTests(ctx, "rhosp-ci", 10)
	if err != nil {
		t.Fatalf("top failing: %v", err)
	}
	want := []models.TestFailureStat{
		{ClassName: "tempest.api.Net", Name: "test_flaky", Failures: 2, Successes: 1},
		{ClassName: "tempest.api.Vol", Name: "test_once", Failures: 1},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}

	unique, err := s.UniqueTests(ctx, "rhosp-ci", 0)
	if err != nil {
		t.Fatalf("unique tests: %v", err)
	}
	wantUnique := []models.UniqueTest{
		{ClassName: "tempest.api.Net", Name: "test_flaky", Builds: 3},
		{ClassName: "tempest.api.Net", Name: "test_solid", Builds: 3},
		{ClassName: "tempest.api.Vol", Name: "test_once", Builds: 1},
	}
	if diff := cmp.Diff(wantUnique, unique); diff != "" {
		t.Fatalf("unexpected unique tests (-want +got):\n%s", diff)
	}

	counts, err := s.CountByState(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	wantCounts := map[models.IngestState]int{models.StatePending: 1, models.StateComplete: 3, models.StateAbandoned: 0}
	if diff := cmp.Diff(wantCounts, counts); diff != "" {
		t.Fatalf("unexpected counts (-want +got):\n%s", diff)
	}

	builds, err := s.ListBuilds(ctx, "rhosp-ci", 2)
	if err != nil {
		t.Fatalf("list builds: %v", err)
	}
	if len(builds) != 2 || builds[0].Number != 4 || builds[1].Number != 3 {
		t.Fatalf("unexpected build listing: %+v", builds)
	}
}

func TestConcurrentWritersOnFileDatabase(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "rhoci.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	const builds = 16
	var wg sync.WaitGroup
	errs := make(chan error, builds*2)
	for n := 1; n <= builds; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := models.BuildKey{Job: "rhosp-ci", Number: n}
			if _, err := s.EnqueueBuild(ctx, key, "", t0); err != nil {
				errs <- err
				return
			}
			tests := []models.Test{{ClassName: "c", Name: fmt.Sprintf("test_%d", n), Status: models.TestFailure}}
			if err := s.CompleteBuild(ctx, models.Build{Job: key.Job, Number: n, Status: models.BuildFailure}, tests, nil, t0); err != nil {
				errs <- err
			}
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent write failed: %v", err)
	}

	counts, err := s.CountByState(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[models.StateComplete] != builds {
		t.Fatalf("expected %d complete builds, got %+v", builds, counts)
	}
}
