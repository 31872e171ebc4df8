package sequence

// Clip shows one pattern for a while.
type Clip struct {
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	Pattern   string  `json:"pattern" yaml:"pattern"`
	DurationS float64 `json:"durationS" yaml:"duration_s"`
	// StepMs is the delay between pattern steps; 0 uses the player default.
	StepMs int `json:"stepMs,omitempty" yaml:"step_ms,omitempty"`
}

// Program is a playlist of clips.
type Program struct {
	Loop  bool   `json:"loop,omitempty" yaml:"loop"`
	Seed  uint32 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Clips []Clip `json:"clips" yaml:"clips"`
}

// PlayerState enumerates sequencer states.
type PlayerState string

const (
	Idle    PlayerState = "idle"
	Running PlayerState = "running"
	Paused  PlayerState = "paused"
)

// Hooks are dependency-injected callbacks into the idle renderer.
type Hooks struct {
	// SetPattern switches the active pattern immediately.
	SetPattern func(clip Clip)
	// Done is called when a non-looping program ends.
	Done func()
}

// Player owns the current Program timeline and uses Hooks to drive the
// pattern runner.
type Player struct {
	State PlayerState

	prog Program
	nowS float64 // position within program
	idx  int     // current clip index

	hooks Hooks
}
