package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/dshills/taskgraph-go/flow"
	"github.com/dshills/taskgraph-go/flow/store"
)

// conformance exercises the flow.Storage contract shared by every
// implementation.
func conformance(t *testing.T, st flow.Storage) {
	t.Helper()

	if err := st.SetFlowState(flow.StateSuspended); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if got := st.FlowState(); got != flow.StateSuspended {
		t.Errorf("flow state = %s, want SUSPENDED", got)
	}
	if err := st.SetFlowState(flow.StateRunning); err != nil {
		t.Fatal(err)
	}

	if err := st.SetAtomState("a", flow.StateSuccess); err != nil {
		t.Fatalf("SetAtomState failed: %v", err)
	}
	if err := st.SetIntention("a", flow.IntentionRetry); err != nil {
		t.Fatalf("SetIntention failed: %v", err)
	}
	if err := st.SetProgress("a", 3); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
	if err := st.Save("a", "hello"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if got := st.AtomState("a"); got != flow.StateSuccess {
		t.Errorf("state = %s, want SUCCESS", got)
	}
	if got := st.Intention("a"); got != flow.IntentionRetry {
		t.Errorf("intention = %s, want RETRY", got)
	}
	if got := st.Progress("a"); got != 3 {
		t.Errorf("progress = %v, want 3", got)
	}
	if got := st.Result("a"); got != "hello" {
		t.Errorf("result = %v, want hello", got)
	}

	// Failures survive as failures.
	failure := flow.NewFailure(flow.NewTask("b", nil, nil), flow.Executed, errors.New("boom"))
	if err := st.Save("b", failure); err != nil {
		t.Fatalf("Save failure failed: %v", err)
	}
	f, ok := st.Result("b").(*flow.Failure)
	if !ok {
		t.Fatalf("stored failure read back as %T, want *Failure", st.Result("b"))
	}
	if f.AtomName != "b" || f.Event != flow.Executed {
		t.Errorf("failure identity = (%s, %s), want (b, EXECUTED)", f.AtomName, f.Event)
	}
}

func TestStorageConformance(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		conformance(t, store.NewMemoryStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "flow.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		defer st.Close()
		conformance(t, st)
	})

	t.Run("mysql", func(t *testing.T) {
		st := openTestMySQL(t)
		defer st.Close()
		conformance(t, st)
	})
}
