package catalog

import (
	"time"

	"github.com/google/uuid"
)

// SetupStatus is the lifecycle state of a Thing's setup process.
type SetupStatus string

const (
	SetupNone       SetupStatus = "None"
	SetupInProgress SetupStatus = "InProgress"
	SetupComplete   SetupStatus = "Complete"
	SetupStatusFail SetupStatus = "Failed"
)

// StateValue is a Thing's current value for one StateType, together with
// any per-thing bound overrides reported by the plugin.
type StateValue struct {
	Value         any
	MinValue      any
	MaxValue      any
	AllowedValues []any
}

// Thing is a configured instance of a device or service.
type Thing struct {
	ID           uuid.UUID
	ThingClassID uuid.UUID
	Name         string
	ParentID     *uuid.UUID

	Params   ParamList
	Settings ParamList
	States   map[uuid.UUID]StateValue

	SetupStatus SetupStatus
	AutoCreated bool
}

// Clone returns a deep-enough copy of t for revert-on-failure semantics
// (spec.md §4.5 ReconfigureThing step (d)).
func (t Thing) Clone() Thing {
	c := t
	c.Params = append(ParamList(nil), t.Params...)
	c.Settings = append(ParamList(nil), t.Settings...)
	c.States = make(map[uuid.UUID]StateValue, len(t.States))
	for k, v := range t.States {
		c.States[k] = v
	}
	return c
}

// ThingDescriptor is a candidate Thing surfaced by discovery.
type ThingDescriptor struct {
	ID           uuid.UUID
	ThingClassID uuid.UUID
	Title        string
	Description  string
	ThingID      *uuid.UUID // set when this descriptor matches an already-configured thing
	Params       ParamList
	ParentID     *uuid.UUID
}

// BrowserItem is a tree node exposed by a browsable Thing.
type BrowserItem struct {
	ID                string
	DisplayName       string
	Description       string
	Icon              string
	Thumbnail         string
	Executable        bool
	Browsable         bool
	Disabled          bool
	ActionTypeIDs     []uuid.UUID
	ExtendedProperties map[string]string
}

// Action is a requested invocation of an ActionType with concrete,
// already-validated params (spec component C4's ThingActionInfo input).
type Action struct {
	ActionTypeID uuid.UUID
	Params       ParamList
}

// IOConnection binds an input state on one Thing to an output state on
// another, with optional inversion (spec component C8).
type IOConnection struct {
	ID               uuid.UUID
	InputThingID     uuid.UUID
	InputStateTypeID uuid.UUID
	OutputThingID     uuid.UUID
	OutputStateTypeID uuid.UUID
	Inverted          bool
}

// PairingTransaction is a server-side handle tracking a multi-step setup.
type PairingTransaction struct {
	ID           uuid.UUID
	ThingClassID uuid.UUID
	ThingID      *uuid.UUID // set for reconfigure-via-pairing
	Name         string
	Params       ParamList
	ParentID     *uuid.UUID
	SetupMethod  SetupMethod
	OAuthURL     string
	CreatedAt    time.Time
}

// RemovePolicy is the rule-engine collaborator's resolution for a rule
// that references a Thing being removed (spec.md §4.5 RemoveThing).
type RemovePolicy string

const (
	RemovePolicyCascade      RemovePolicy = "Cascade"
	RemovePolicyUpdateRule   RemovePolicy = "UpdateRule"
)
