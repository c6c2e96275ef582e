package ledger

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_RunLifecycle(t *testing.T) {
	l := openTemp(t)
	id, err := l.StartRun("cases.yaml", "concurrent")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	missing := []MissingArtifact{{Seq: 1, Kind: "side-B fragment", URL: "http://h/r1-1.html", Attempts: 1, Cause: "GET: 404 Not Found"}}
	if _, err := l.RecordGroup(id, Group{Case: "p1", Index: 0, Dir: "out/p1-0", Matches: 2, Status: StatusWarnings, Missing: missing}); err != nil {
		t.Fatalf("RecordGroup: %v", err)
	}
	if _, err := l.RecordGroup(id, Group{Case: "p1", Index: 1, Dir: "out/p1-1", Status: StatusOK}); err != nil {
		t.Fatalf("RecordGroup: %v", err)
	}
	if err := l.FinishRun(id, StatusWarnings); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := l.Runs(10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Groups != 2 || runs[0].Missing != 1 || runs[0].Status != StatusWarnings || runs[0].FinishedAt == "" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	groups, err := l.Groups(id)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d", len(groups))
	}
	if diff := cmp.Diff(missing, groups[0].Missing); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
	if len(groups[1].Missing) != 0 {
		t.Errorf("group 1 should have no missing artifacts")
	}
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	if err := openTemp(t).FinishRun("nope", StatusOK); err == nil {
		t.Fatal("expected error")
	}
}

func TestLedger_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.StartRun("a.yaml", "serial"); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	runs, err := l.Runs(0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs after reopen: %v %+v", err, runs)
	}
}

func TestLedger_ConcurrentRecords(t *testing.T) {
	l := openTemp(t)
	id, err := l.StartRun("cases.yaml", "concurrent")
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RecordGroup(id, Group{Case: "p", Index: i, Dir: "d", Status: StatusOK}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	groups, err := l.Groups(id)
	if err != nil || len(groups) != 8 {
		t.Fatalf("groups: %v %d", err, len(groups))
	}
}

func TestLedger_GroupsFollowCaseFileOrder(t *testing.T) {
	l := openTemp(t)
	id, err := l.StartRun("cases.yaml", "concurrent")
	if err != nil {
		t.Fatal(err)
	}
	// recorded out of order, as concurrent groups finish
	for _, g := range []Group{
		{Case: "alpha", CaseIndex: 1, Index: 1, Dir: "out/alpha-1", Status: StatusOK},
		{Case: "zeta", CaseIndex: 0, Index: 0, Dir: "out/zeta-0", Status: StatusOK},
		{Case: "alpha", CaseIndex: 1, Index: 0, Dir: "out/alpha-0", Status: StatusOK},
	} {
		if _, err := l.RecordGroup(id, g); err != nil {
			t.Fatal(err)
		}
	}
	groups, err := l.Groups(id)
	if err != nil {
		t.Fatal(err)
	}
	var dirs []string
	for _, g := range groups {
		dirs = append(dirs, g.Dir)
	}
	if diff := cmp.Diff([]string{"out/zeta-0", "out/alpha-0", "out/alpha-1"}, dirs); diff != "" {
		t.Errorf("group order (-want +got):\n%s", diff)
	}
}
