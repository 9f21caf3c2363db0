package pipeline

// State is a step of the enrichment lifecycle. States advance strictly in declaration order;
// StateFailed is terminal and reachable from any state.
type State int

const (
	StateInit State = iota
	StatePrepared
	StateIndexed
	StateSentimentFetched
	StateSentimentApplied
	StateWeaponsComputed
	StateWeaponsApplied
	StateCleaned
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:             "INIT",
	StatePrepared:         "PREPARED",
	StateIndexed:          "INDEXED",
	StateSentimentFetched: "SENTIMENT_FETCHED",
	StateSentimentApplied: "SENTIMENT_APPLIED",
	StateWeaponsComputed:  "WEAPONS_COMPUTED",
	StateWeaponsApplied:   "WEAPONS_APPLIED",
	StateCleaned:          "CLEANED",
	StateDone:             "DONE",
	StateFailed:           "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText renders the state name in logs and JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
