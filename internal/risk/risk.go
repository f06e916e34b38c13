// Package risk implements the server's risk state machine (spec §4.13): a
// single value holding bird-risk and the two runway risks. It is a
// mutex-guarded value type; the dispatch core (spec §4.15) calls its methods
// directly from its connection goroutines, with no owning goroutine or
// command channel in front of it.
package risk

import "sync"

// BirdRisk is the bird-hazard enum (spec §3).
type BirdRisk string

const (
	BirdLow    BirdRisk = "LOW"
	BirdMedium BirdRisk = "MEDIUM"
	BirdHigh   BirdRisk = "HIGH"
)

// RunwayStatus is the per-runway enum (spec §3).
type RunwayStatus string

const (
	RunwayClear   RunwayStatus = "CLEAR"
	RunwayWarning RunwayStatus = "WARNING"
)

// Runway identifies which runway cell a mutation targets.
type Runway int

const (
	RunwayA Runway = iota
	RunwayB
)

// ChangeKind names the broadcast event kind a transition produces (spec
// §4.13, §6).
type ChangeKind string

const (
	BirdChanged   ChangeKind = "BR_CHANGED"
	RunwayAChanged ChangeKind = "RWY_A_STATUS_CHANGED"
	RunwayBChanged ChangeKind = "RWY_B_STATUS_CHANGED"
)

// Change is the broadcast produced by an accepted transition.
type Change struct {
	Kind  ChangeKind
	Value string
}

// State holds the three risk cells. Initial state is bird-risk=LOW and
// both runways=CLEAR (spec §4.13).
type State struct {
	mu       sync.Mutex
	bird     BirdRisk
	runwayA  RunwayStatus
	runwayB  RunwayStatus
}

// New creates a State in its initial configuration.
func New() *State {
	return &State{bird: BirdLow, runwayA: RunwayClear, runwayB: RunwayClear}
}

// SetBirdRisk applies a proposed bird-risk level. Returns (Change, true) if
// the value actually changed, else (zero, false) — an equal-valued update
// is silently absorbed (spec §4.13 transition policy).
func (s *State) SetBirdRisk(v BirdRisk) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bird == v {
		return Change{}, false
	}
	s.bird = v
	return Change{Kind: BirdChanged, Value: string(v)}, true
}

// SetRunway applies a direct operator-commanded runway status change.
func (s *State) SetRunway(r Runway, v RunwayStatus) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r {
	case RunwayA:
		if s.runwayA == v {
			return Change{}, false
		}
		s.runwayA = v
		return Change{Kind: RunwayAChanged, Value: string(v)}, true
	case RunwayB:
		if s.runwayB == v {
			return Change{}, false
		}
		s.runwayB = v
		return Change{Kind: RunwayBChanged, Value: string(v)}, true
	}
	return Change{}, false
}

// Snapshot is a consistent read of all three cells, used to re-broadcast
// current state to a freshly (re)connected operator console (spec §4.3,
// §7 "level-triggered" reconnect contract).
type Snapshot struct {
	Bird    BirdRisk
	RunwayA RunwayStatus
	RunwayB RunwayStatus
}

// Current returns a Snapshot of the state.
func (s *State) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Bird: s.bird, RunwayA: s.runwayA, RunwayB: s.runwayB}
}

// Availability is the derived runway-availability vocabulary used by pilot
// queries (spec §6: "ALL|A_ONLY|B_ONLY|NONE").
type Availability string

const (
	AvailAll    Availability = "ALL"
	AvailAOnly  Availability = "A_ONLY"
	AvailBOnly  Availability = "B_ONLY"
	AvailNone   Availability = "NONE"
)

// Availability derives the combined runway-availability answer from the
// current per-runway state.
func (s Snapshot) Availability() Availability {
	aClear := s.RunwayA == RunwayClear
	bClear := s.RunwayB == RunwayClear
	switch {
	case aClear && bClear:
		return AvailAll
	case aClear:
		return AvailAOnly
	case bClear:
		return AvailBOnly
	default:
		return AvailNone
	}
}
