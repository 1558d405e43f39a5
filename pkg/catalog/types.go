// Package catalog implements the Type Catalog (spec component C1): the
// typed, per-plugin-load registry of vendors, thing classes, and the
// param/state/event/action/browser-item-action types that describe them,
// plus the validation rules every other component relies on.
package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValueType is the primitive type a Param or State value is coerced to.
type ValueType string

const (
	ValueBool      ValueType = "bool"
	ValueInt       ValueType = "int"
	ValueUint      ValueType = "uint"
	ValueDouble    ValueType = "double"
	ValueString    ValueType = "string"
	ValueColor     ValueType = "color"
	ValueTime      ValueType = "time"
	ValueTimestamp ValueType = "timestamp"
)

// CreateMethod enumerates how a Thing of a given class may come into being.
type CreateMethod string

const (
	CreateJustAdd   CreateMethod = "JustAdd"
	CreateDiscovery CreateMethod = "Discovery"
	CreateAuto      CreateMethod = "Auto"
)

// SetupMethod enumerates the pairing flow a ThingClass requires.
type SetupMethod string

const (
	SetupJustAdd         SetupMethod = "JustAdd"
	SetupDisplayPin      SetupMethod = "DisplayPin"
	SetupEnterPin        SetupMethod = "EnterPin"
	SetupPushButton      SetupMethod = "PushButton"
	SetupUserAndPassword SetupMethod = "UserAndPassword"
	SetupOAuth           SetupMethod = "OAuth"
)

// ParamType describes one configuration/state facet: its value type,
// bounds, default, and whether it may be changed after setup.
type ParamType struct {
	ID            uuid.UUID
	Name          string
	DisplayName   string
	ValueType     ValueType
	DefaultValue  any
	MinValue      any
	MaxValue      any
	AllowedValues []any
	Unit          string
	ReadOnly      bool
}

// StateType describes an observable value on a Thing. A writable StateType
// implicitly induces an ActionType and EventType sharing its id (spec.md §3).
type StateType struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	ValueType   ValueType
	DefaultValue  any
	MinValue      any
	MaxValue      any
	AllowedValues []any
	Writable    bool
	Cached      bool
	Loggable    bool
	Filter      bool
}

// EventType describes a notification a Thing may emit.
type EventType struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	ParamTypes  []ParamType
}

// ActionType describes a command a Thing may accept.
type ActionType struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	ParamTypes  []ParamType
	Browsable   bool
}

// BrowserItemActionType describes an action attached to a browser item
// rather than to the Thing itself.
type BrowserItemActionType struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	ParamTypes  []ParamType
}

// Vendor groups thing classes under a display identity.
type Vendor struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
}

// ThingClass is the static type describing a Thing's capabilities.
type ThingClass struct {
	ID       uuid.UUID
	VendorID uuid.UUID
	PluginID uuid.UUID

	Name        string
	DisplayName string

	CreateMethods []CreateMethod
	SetupMethod   SetupMethod
	Interfaces    []string

	ParamTypes          []ParamType
	SettingsTypes       []ParamType
	DiscoveryParamTypes []ParamType

	StateTypes              []StateType
	EventTypes              []EventType
	ActionTypes             []ActionType
	BrowserItemActionTypes  []BrowserItemActionType

	Browsable bool

	// ChildCreatable is true if Things of this class may hold children
	// (spec.md §3's Thing.parentId invariant: "whose class declares it
	// may have children").
	ChildCreatable bool
}

// SupportsCreateMethod reports whether m is among cls.CreateMethods.
func (c ThingClass) SupportsCreateMethod(m CreateMethod) bool {
	for _, cm := range c.CreateMethods {
		if cm == m {
			return true
		}
	}
	return false
}

// FindStateType returns the StateType with the given id, if any.
func (c ThingClass) FindStateType(id uuid.UUID) (StateType, bool) {
	for _, st := range c.StateTypes {
		if st.ID == id {
			return st, true
		}
	}
	return StateType{}, false
}

// FindActionType returns the ActionType with the given id, if any.
func (c ThingClass) FindActionType(id uuid.UUID) (ActionType, bool) {
	for _, at := range c.ActionTypes {
		if at.ID == id {
			return at, true
		}
	}
	return ActionType{}, false
}

// FindParamType returns the ParamType with the given id, if any.
func (c ThingClass) FindParamType(id uuid.UUID) (ParamType, bool) {
	for _, pt := range c.ParamTypes {
		if pt.ID == id {
			return pt, true
		}
	}
	return ParamType{}, false
}

// Param is a single typed value attached to a ParamType.
type Param struct {
	ParamTypeID uuid.UUID
	Value       any
}

// ParamList is an ordered sequence of Param with unique ParamTypeID.
type ParamList []Param

// Has reports whether the list carries a value for id.
func (l ParamList) Has(id uuid.UUID) bool {
	_, ok := l.find(id)
	return ok
}

// Value returns the value for id, or nil if absent.
func (l ParamList) Value(id uuid.UUID) any {
	p, ok := l.find(id)
	if !ok {
		return nil
	}
	return p.Value
}

func (l ParamList) find(id uuid.UUID) (Param, bool) {
	for _, p := range l {
		if p.ParamTypeID == id {
			return p, true
		}
	}
	return Param{}, false
}

// PluginCatalog is what a plugin hands to the Type Catalog at load time
// (spec.md §4.1 registerPlugin).
type PluginCatalog struct {
	Vendors                []Vendor
	ThingClasses           []ThingClass
	BrowserItemActionTypes []BrowserItemActionType
}

// Catalog is the immutable-per-load, RWMutex-guarded registry of vendors
// and thing classes. Concurrency shape is grounded on
// internal/registry.Registry (RLock for reads, Lock for mutation,
// structured zap logging of every accept/reject).
type Catalog struct {
	mu sync.RWMutex

	vendors       map[uuid.UUID]Vendor
	thingClasses  map[uuid.UUID]ThingClass
	byPlugin      map[uuid.UUID][]uuid.UUID // pluginID -> thingClass ids

	logger *zap.Logger
}

// New creates an empty Type Catalog.
func New(logger *zap.Logger) *Catalog {
	return &Catalog{
		vendors:      make(map[uuid.UUID]Vendor),
		thingClasses: make(map[uuid.UUID]ThingClass),
		byPlugin:     make(map[uuid.UUID][]uuid.UUID),
		logger:       logger,
	}
}

// RegisterPlugin merges a plugin's declared vendors/classes into the
// catalog. Duplicate ids are logged and dropped rather than failing the
// whole registration; a thing class naming an unknown vendor is dropped
// with a warning (spec.md §4.1).
func (c *Catalog) RegisterPlugin(pluginID uuid.UUID, pc PluginCatalog) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range pc.Vendors {
		if _, exists := c.vendors[v.ID]; exists {
			c.logger.Warn("duplicate vendor id, dropping", zap.String("vendor", v.Name), zap.String("id", v.ID.String()))
			continue
		}
		c.vendors[v.ID] = v
	}

	for _, cls := range pc.ThingClasses {
		if _, exists := c.thingClasses[cls.ID]; exists {
			c.logger.Warn("duplicate thing class id, dropping", zap.String("class", cls.Name), zap.String("id", cls.ID.String()))
			continue
		}
		if _, ok := c.vendors[cls.VendorID]; !ok {
			c.logger.Warn("thing class references unknown vendor, dropping",
				zap.String("class", cls.Name), zap.String("vendor_id", cls.VendorID.String()))
			continue
		}
		cls.PluginID = pluginID
		cls.Interfaces = c.satisfiesInterfacesLocked(cls)
		induceWritableStateActionsAndEvents(&cls)
		c.thingClasses[cls.ID] = cls
		c.byPlugin[pluginID] = append(c.byPlugin[pluginID], cls.ID)
		c.logger.Info("thing class registered",
			zap.String("class", cls.Name), zap.String("vendor", c.vendors[cls.VendorID].Name))
	}
}

// UnregisterPlugin removes every thing class contributed by pluginID.
// Vendors stay registered: the catalog does not record which plugin
// declared a vendor.
func (c *Catalog) UnregisterPlugin(pluginID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.byPlugin[pluginID] {
		delete(c.thingClasses, id)
	}
	delete(c.byPlugin, pluginID)
}

// Vendors returns all registered vendors.
func (c *Catalog) Vendors() []Vendor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Vendor, 0, len(c.vendors))
	for _, v := range c.vendors {
		out = append(out, v)
	}
	return out
}

// ThingClasses returns all thing classes, optionally filtered by vendor.
func (c *Catalog) ThingClasses(vendorID *uuid.UUID) []ThingClass {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ThingClass, 0, len(c.thingClasses))
	for _, cls := range c.thingClasses {
		if vendorID != nil && cls.VendorID != *vendorID {
			continue
		}
		out = append(out, cls)
	}
	return out
}

// FindThingClass returns the thing class with id, if registered.
func (c *Catalog) FindThingClass(id uuid.UUID) (ThingClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cls, ok := c.thingClasses[id]
	return cls, ok
}

// satisfiesInterfacesLocked filters cls.Interfaces down to the ones
// structurally satisfied by its declared state/event/action types
// (spec.md §4.1's SatisfiesInterfaces, called at registration time).
// Callers must hold c.mu.
func (c *Catalog) satisfiesInterfacesLocked(cls ThingClass) []string {
	satisfied := make([]string, 0, len(cls.Interfaces))
	for _, iface := range cls.Interfaces {
		if interfaceSatisfied(iface, cls) {
			satisfied = append(satisfied, iface)
		} else {
			c.logger.Warn("thing class declares unsatisfied interface, dropping",
				zap.String("class", cls.Name), zap.String("interface", iface))
		}
	}
	return satisfied
}

// interfaceSatisfied is a structural check against the well-known
// interface registry (see interfaces.go).
func interfaceSatisfied(iface string, cls ThingClass) bool {
	req, ok := wellKnownInterfaces[iface]
	if !ok {
		// Unknown interface names are accepted as-is: this catalog does
		// not maintain an exhaustive interface registry, only the common
		// ones plugins are likely to declare.
		return true
	}
	for _, name := range req.states {
		if !hasStateNamed(cls, name) {
			return false
		}
	}
	for _, name := range req.actions {
		if !hasActionNamed(cls, name) {
			return false
		}
	}
	return true
}

func hasStateNamed(cls ThingClass, name string) bool {
	for _, st := range cls.StateTypes {
		if st.Name == name {
			return true
		}
	}
	return false
}

func hasActionNamed(cls ThingClass, name string) bool {
	for _, at := range cls.ActionTypes {
		if at.Name == name {
			return true
		}
	}
	return false
}

// induceWritableStateActionsAndEvents adds the synthetic ActionType and
// EventType every writable StateType implies (spec.md §3).
func induceWritableStateActionsAndEvents(cls *ThingClass) {
	for _, st := range cls.StateTypes {
		if !st.Writable {
			continue
		}
		if _, ok := cls.FindActionType(st.ID); !ok {
			cls.ActionTypes = append(cls.ActionTypes, ActionType{
				ID:          st.ID,
				Name:        st.Name,
				DisplayName: st.DisplayName,
				ParamTypes: []ParamType{{
					ID:        st.ID,
					Name:      st.Name,
					ValueType: st.ValueType,
				}},
			})
		}
		hasEvent := false
		for _, et := range cls.EventTypes {
			if et.ID == st.ID {
				hasEvent = true
				break
			}
		}
		if !hasEvent {
			cls.EventTypes = append(cls.EventTypes, EventType{
				ID:          st.ID,
				Name:        st.Name,
				DisplayName: st.DisplayName,
				ParamTypes: []ParamType{{
					ID:        st.ID,
					Name:      st.Name,
					ValueType: st.ValueType,
				}},
			})
		}
	}
}

// interfaceRequirement names the states/actions a well-known interface
// structurally requires.
type interfaceRequirement struct {
	states  []string
	actions []string
}

// wellKnownInterfaces is a small, non-exhaustive set of structural
// interfaces this catalog can actually check; anything else is accepted
// without verification (see interfaceSatisfied).
var wellKnownInterfaces = map[string]interfaceRequirement{
	"power":      {states: []string{"power"}, actions: []string{"power"}},
	"temperature": {states: []string{"temperature"}},
	"battery":    {states: []string{"batteryLevel"}},
}

// ErrUnknown is a sentinel for lookups that should surface a ThingError.
var ErrUnknown = fmt.Errorf("not found")
