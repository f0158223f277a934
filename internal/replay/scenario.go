package replay

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/eventdash/authsync/identity"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoSteps     = errors.New("replay: scenario has no steps")
	ErrInvalidStep = errors.New("replay: invalid step")
)

// Scenario is the decoded form of a replay file.
type Scenario struct {
	Name string `yaml:"name"`
	// Location is where the view is mounted.
	Location string `yaml:"location"`
	// Session names the user signed in at the provider before mounting.
	Session string `yaml:"session"`
	// Roles seeds the role store, keyed by user id.
	Roles map[string][]string `yaml:"roles"`
	Gates []GateSpec          `yaml:"gates"`
	Steps []Step              `yaml:"steps"`
	// Tail is how long the clock keeps running after the last step.
	Tail time.Duration `yaml:"tail"`
}

// GateSpec registers an access gate for the duration of the replay.
type GateSpec struct {
	Name    string   `yaml:"name"`
	Allowed []string `yaml:"allowed"`
}

// Step is one timed action. Exactly one action field must be set.
type Step struct {
	At time.Duration `yaml:"at"`

	Event      string   `yaml:"event"`
	User       string   `yaml:"user"`
	Location   string   `yaml:"location"`
	Redirect   bool     `yaml:"redirect"`
	ForceClear bool     `yaml:"force_clear"`
	SignOut    bool     `yaml:"sign_out"`
	Refetch    bool     `yaml:"refetch"`
	SetRoles   []string `yaml:"set_roles"`
}

var eventKinds = map[string]identity.EventKind{
	string(identity.EventInitialSession):   identity.EventInitialSession,
	string(identity.EventSignedIn):         identity.EventSignedIn,
	string(identity.EventSignedOut):        identity.EventSignedOut,
	string(identity.EventTokenRefreshed):   identity.EventTokenRefreshed,
	string(identity.EventUserUpdated):      identity.EventUserUpdated,
	string(identity.EventPasswordRecovery): identity.EventPasswordRecovery,
}

// Decode reads a YAML scenario, applies defaults and validates it. Steps are
// returned ordered by time; steps sharing a time keep file order.
func Decode(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("replay: decode scenario: %w", err)
	}
	if sc.Location == "" {
		sc.Location = "/"
	}
	if sc.Tail <= 0 {
		sc.Tail = 5 * time.Second
	}
	if len(sc.Steps) == 0 {
		return Scenario{}, ErrNoSteps
	}
	for i := range sc.Steps {
		if err := sc.Steps[i].validate(); err != nil {
			return Scenario{}, fmt.Errorf("%w %d: %v", ErrInvalidStep, i, err)
		}
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool { return sc.Steps[i].At < sc.Steps[j].At })
	return sc, nil
}

func (s Step) validate() error {
	if s.At < 0 {
		return errors.New("negative time")
	}
	actions := 0
	if s.Event != "" {
		actions++
		kind, ok := eventKinds[strings.ToUpper(s.Event)]
		if !ok {
			return fmt.Errorf("unknown event %q", s.Event)
		}
		if kind != identity.EventSignedOut && kind != identity.EventPasswordRecovery && s.User == "" {
			return fmt.Errorf("event %s needs a user", kind)
		}
	}
	if s.Location != "" {
		actions++
		if !strings.HasPrefix(s.Location, "/") {
			return fmt.Errorf("location %q must start with '/'", s.Location)
		}
	}
	for _, set := range []bool{s.Redirect, s.ForceClear, s.SignOut, s.Refetch, s.SetRoles != nil} {
		if set {
			actions++
		}
	}
	if s.SetRoles != nil && s.User == "" {
		return errors.New("set_roles needs a user")
	}
	if actions != 1 {
		return fmt.Errorf("expected exactly one action, got %d", actions)
	}
	return nil
}

// Kind returns the identity event kind of an event step.
func (s Step) Kind() identity.EventKind {
	return eventKinds[strings.ToUpper(s.Event)]
}
