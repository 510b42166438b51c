package flow

import "fmt"

// Analyzer owns graph topology on behalf of the runner. It answers what
// is ready to run, which retry controller guards an atom, and whether the
// whole graph finished successfully. The runner never re-derives graph
// structure itself.
type Analyzer interface {
	// NextNodes returns the atoms newly eligible to run. With a nil
	// argument it answers for the whole graph given current persisted
	// state; with a completed atom it answers what that completion made
	// ready. Ready atoms never include in-flight ones.
	NextNodes(after Atom) ([]Atom, error)

	// FindRetry returns the retry controller guarding the given atom, or
	// nil when the atom is unguarded.
	FindRetry(atom Atom) *Retry

	// Subgraph enumerates the atoms guarded by the given controller,
	// excluding the controller itself.
	Subgraph(retry *Retry) []Atom

	// AllNodes enumerates every atom in the graph.
	AllNodes() []Atom

	// RetriesIn enumerates the retry controllers currently in the given
	// state.
	RetriesIn(state State) []*Retry

	// StateOf returns the persisted state of the given atom.
	StateOf(atom Atom) State

	// IsSuccess reports whether every atom in the graph succeeded.
	IsSuccess() bool
}

// Graph is a dependency graph of atoms with retry-scope guards. It is
// built once before a run and never mutated by the runner.
type Graph struct {
	atoms map[string]Atom
	order []string
	preds map[string][]string
	succs map[string][]string
	scope map[string]string // atom name -> guarding retry name
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		atoms: make(map[string]Atom),
		preds: make(map[string][]string),
		succs: make(map[string][]string),
		scope: make(map[string]string),
	}
}

// Add registers atoms in the graph. Names must be unique.
func (g *Graph) Add(atoms ...Atom) error {
	for _, a := range atoms {
		if a == nil || a.Name() == "" {
			return fmt.Errorf("flow: atom must have a name")
		}
		if _, exists := g.atoms[a.Name()]; exists {
			return fmt.Errorf("flow: duplicate atom name %q", a.Name())
		}
		g.atoms[a.Name()] = a
		g.order = append(g.order, a.Name())
	}
	return nil
}

// Link adds a dependency edge: to may not run until from has succeeded,
// and from may not revert until to has been reverted.
func (g *Graph) Link(from, to string) error {
	if _, ok := g.atoms[from]; !ok {
		return fmt.Errorf("flow: unknown atom %q", from)
	}
	if _, ok := g.atoms[to]; !ok {
		return fmt.Errorf("flow: unknown atom %q", to)
	}
	g.succs[from] = append(g.succs[from], to)
	g.preds[to] = append(g.preds[to], from)
	return nil
}

// Guard places atoms inside the retry controller's scope. The controller
// becomes a predecessor of each guarded atom, so the subflow runs only
// after the controller and the controller reverts only after the subflow.
// Guarding another controller nests the scopes.
func (g *Graph) Guard(retry *Retry, atoms ...Atom) error {
	if _, ok := g.atoms[retry.Name()]; !ok {
		if err := g.Add(retry); err != nil {
			return err
		}
	}
	for _, a := range atoms {
		if _, ok := g.atoms[a.Name()]; !ok {
			return fmt.Errorf("flow: unknown atom %q", a.Name())
		}
		if a.Name() == retry.Name() {
			return fmt.Errorf("flow: retry %q cannot guard itself", retry.Name())
		}
		g.scope[a.Name()] = retry.Name()
		if err := g.Link(retry.Name(), a.Name()); err != nil {
			return err
		}
	}
	return nil
}

// graphAnalyzer answers readiness questions from a Graph plus the
// persisted atom states in Storage.
type graphAnalyzer struct {
	g  *Graph
	st Storage
}

// NewGraphAnalyzer creates an Analyzer over the given graph and storage.
func NewGraphAnalyzer(g *Graph, st Storage) Analyzer {
	return &graphAnalyzer{g: g, st: st}
}

func (a *graphAnalyzer) NextNodes(after Atom) ([]Atom, error) {
	var names []string
	if after == nil {
		names = a.g.order
	} else {
		// A completion can only change readiness in the completed atom's
		// neighborhood: its successors (execution), its predecessors
		// (reversion, including a guarding controller) and the atom
		// itself (a failed atom reverts in place).
		seen := map[string]bool{after.Name(): true}
		names = append(names, after.Name())
		for _, n := range a.g.succs[after.Name()] {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
		for _, n := range a.g.preds[after.Name()] {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}

	var ready []Atom
	for _, name := range names {
		if a.isReady(name) {
			ready = append(ready, a.g.atoms[name])
		}
	}
	return ready, nil
}

// isReady applies the readiness predicate for one atom given its stored
// intention and state.
func (a *graphAnalyzer) isReady(name string) bool {
	state := a.st.AtomState(name)
	switch a.st.Intention(name) {
	case IntentionExecute:
		if state != StatePending {
			return false
		}
		for _, p := range a.g.preds[name] {
			if a.st.AtomState(p) != StateSuccess {
				return false
			}
		}
		return true
	case IntentionRevert, IntentionRetry:
		if state != StateSuccess && state != StateFailure {
			return false
		}
		for _, s := range a.g.succs[name] {
			switch a.st.AtomState(s) {
			case StatePending, StateReverted:
			default:
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (a *graphAnalyzer) FindRetry(atom Atom) *Retry {
	guard, ok := a.g.scope[atom.Name()]
	if !ok {
		return nil
	}
	r, _ := a.g.atoms[guard].(*Retry)
	return r
}

func (a *graphAnalyzer) Subgraph(retry *Retry) []Atom {
	var guarded []Atom
	for _, name := range a.g.order {
		if name == retry.Name() {
			continue
		}
		for guard, ok := a.g.scope[name]; ok; guard, ok = a.g.scope[guard] {
			if guard == retry.Name() {
				guarded = append(guarded, a.g.atoms[name])
				break
			}
		}
	}
	return guarded
}

func (a *graphAnalyzer) AllNodes() []Atom {
	all := make([]Atom, 0, len(a.g.order))
	for _, name := range a.g.order {
		all = append(all, a.g.atoms[name])
	}
	return all
}

func (a *graphAnalyzer) RetriesIn(state State) []*Retry {
	var retries []*Retry
	for _, name := range a.g.order {
		if r, ok := a.g.atoms[name].(*Retry); ok && a.st.AtomState(name) == state {
			retries = append(retries, r)
		}
	}
	return retries
}

func (a *graphAnalyzer) StateOf(atom Atom) State {
	return a.st.AtomState(atom.Name())
}

func (a *graphAnalyzer) IsSuccess() bool {
	for _, name := range a.g.order {
		if a.st.AtomState(name) != StateSuccess {
			return false
		}
	}
	return true
}
