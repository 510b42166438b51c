package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dshills/taskgraph-go/flow"
	"github.com/dshills/taskgraph-go/flow/store"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")

	st, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := st.SetFlowState(flow.StateSuspended); err != nil {
		t.Fatal(err)
	}
	if err := st.SetAtomState("a", flow.StateRunning); err != nil {
		t.Fatal(err)
	}
	if err := st.SetIntention("a", flow.IntentionRevert); err != nil {
		t.Fatal(err)
	}
	if err := st.SetProgress("a", 2); err != nil {
		t.Fatal(err)
	}
	if err := st.Save("a", "checkpoint"); err != nil {
		t.Fatal(err)
	}
	if err := st.Save("b", flow.NewFailure(flow.NewTask("b", nil, nil), flow.Reverted, errors.New("stuck"))); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if got := reopened.FlowState(); got != flow.StateSuspended {
		t.Errorf("flow state = %s, want SUSPENDED", got)
	}
	if got := reopened.AtomState("a"); got != flow.StateRunning {
		t.Errorf("atom a state = %s, want RUNNING", got)
	}
	if got := reopened.Intention("a"); got != flow.IntentionRevert {
		t.Errorf("atom a intention = %s, want REVERT", got)
	}
	if got := reopened.Progress("a"); got != 2 {
		t.Errorf("atom a progress = %v, want 2", got)
	}
	if got := reopened.Result("a"); got != "checkpoint" {
		t.Errorf("atom a result = %v, want checkpoint", got)
	}

	f, ok := reopened.Result("b").(*flow.Failure)
	if !ok {
		t.Fatalf("atom b result %T, want *Failure", reopened.Result("b"))
	}
	if f.Event != flow.Reverted || f.Err.Error() != "stuck" {
		t.Errorf("restored failure = (%s, %q), want (REVERTED, stuck)", f.Event, f.Err)
	}
}

func TestSQLiteStore_ResultsFollowJSONTyping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")

	st, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Save("n", 42); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	// Numbers decode as float64 after a round trip through the result
	// column.
	if got := reopened.Result("n"); got != float64(42) {
		t.Errorf("result = %v (%T), want float64 42", got, got)
	}
}

func TestSQLiteStore_ResumesDriverRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")

	// First process: a mid-flight run that left a failure behind.
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SetAtomState("doomed", flow.StateFailure); err != nil {
		t.Fatal(err)
	}
	if err := st.Save("doomed", flow.NewFailure(flow.NewTask("doomed", nil, nil), flow.Executed, errors.New("crash"))); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// Second process: resume reverts the flow from the stored failure.
	reopened, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	g := flow.NewGraph()
	if err := g.Add(flow.NewTask("doomed", nil, nil)); err != nil {
		t.Fatal(err)
	}
	runner := flow.NewGraphRunner(
		flow.NewGraphAnalyzer(g, reopened),
		reopened,
		flow.NewTaskAction(reopened, flow.NewSerialExecutor()),
		flow.NewRetryAction(reopened),
		flow.Options{},
	)

	var last flow.State
	for state, err := range runner.RunIter(context.Background()) {
		if err != nil {
			t.Fatalf("resumed run failed: %v", err)
		}
		last = state
	}
	if last != flow.StateReverted {
		t.Errorf("terminal = %s, want REVERTED", last)
	}
	if got := reopened.AtomState("doomed"); got != flow.StateReverted {
		t.Errorf("doomed state = %s, want REVERTED", got)
	}
}
