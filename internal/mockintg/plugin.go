package mockintg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// justAddState records the httpPort/async/broken params SetupThing saw
// for one mockJustAdd instance, so a later ExecuteAction("ping") can
// replay the same failure-injection behavior (spec.md §7 S1/S2).
type justAddState struct {
	broken bool
	async  bool
}

// Plugin implements integration.ThingIntegration as a fixture: every
// hook does real, observable work (persists no state of its own beyond
// what it needs to replay param-driven behavior) rather than merely
// recording calls, so it can stand in for a real device during manual
// and scenario testing.
type Plugin struct {
	deps   integration.Dependencies
	logger *zap.Logger

	mu           sync.Mutex
	justAdd      map[uuid.UUID]justAddState
	childCreated map[uuid.UUID]bool
}

// New creates an unconfigured mock plugin; Init wires its dependencies.
func New() *Plugin {
	return &Plugin{
		justAdd:      make(map[uuid.UUID]justAddState),
		childCreated: make(map[uuid.UUID]bool),
	}
}

func (p *Plugin) Info() integration.PluginInfo {
	return integration.PluginInfo{
		ID:          PluginID,
		Name:        "mock",
		Version:     "1.0.0",
		Description: "Reference integration used for manual and scenario testing",
		APIVersion:  integration.APIVersionCurrent,
		Catalog:     pluginCatalog(),
	}
}

func (p *Plugin) Init(ctx context.Context, deps integration.Dependencies) error {
	p.deps = deps
	p.logger = deps.Logger
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

// StartMonitoringAutoThings is a no-op: this plugin only ever
// announces an auto child from PostSetupThing, never on a timer.
func (p *Plugin) StartMonitoringAutoThings(ctx context.Context) {}

// DiscoverThings returns resultCount freshly-numbered descriptors,
// letting scenario tests exercise both a populated and an empty
// discovery reply (spec.md §7 S3).
func (p *Plugin) DiscoverThings(ctx context.Context, info *integration.DiscoveryInfo) {
	count, _ := info.Params.Value(ParamResultCountID).(int64)
	for i := int64(0); i < count; i++ {
		info.AddThingDescriptor(catalog.ThingDescriptor{
			ID:           uuid.New(),
			ThingClassID: ClassDiscoveryID,
			Title:        fmt.Sprintf("Discovered Mock %d", i+1),
			Params:       catalog.ParamList{{ParamTypeID: ParamIndexID, Value: i}},
		})
	}
	info.Finish(catalog.NoError, "")
}

// SetupThing honors the broken/async params on mockJustAdd; every
// other class sets up immediately and successfully.
func (p *Plugin) SetupThing(ctx context.Context, info *integration.SetupInfo) {
	if info.Thing.ThingClassID != ClassJustAddID {
		info.Finish(catalog.NoError, "")
		return
	}

	broken, _ := info.Thing.Params.Value(ParamBrokenID).(bool)
	async, _ := info.Thing.Params.Value(ParamAsyncID).(bool)
	p.mu.Lock()
	p.justAdd[info.Thing.ID] = justAddState{broken: broken, async: async}
	p.mu.Unlock()

	if broken {
		info.Finish(catalog.SetupFailed, "mock thing reports broken")
		return
	}
	if async {
		go func() {
			time.Sleep(10 * time.Millisecond)
			info.Finish(catalog.NoError, "")
		}()
		return
	}
	info.Finish(catalog.NoError, "")
}

// PostSetupThing auto-creates one mockChild the first time a
// mockParent finishes setup, modeling the original's parent/child
// device pair (spec.md §7 S5).
func (p *Plugin) PostSetupThing(ctx context.Context, thing catalog.Thing) {
	if thing.ThingClassID != ClassParentID {
		return
	}
	p.mu.Lock()
	if p.childCreated[thing.ID] {
		p.mu.Unlock()
		return
	}
	p.childCreated[thing.ID] = true
	p.mu.Unlock()

	parentID := thing.ID
	p.deps.ThingManager.AutoThingsAppeared(ctx, PluginID, []catalog.ThingDescriptor{{
		ID:           uuid.New(),
		ThingClassID: ClassChildID,
		Title:        thing.Name + " Child",
		ParentID:     &parentID,
	}})
}

// StartPairing always succeeds; the PIN itself is the thing under
// test, checked later by ConfirmPairing.
func (p *Plugin) StartPairing(ctx context.Context, info *integration.PairingInfo) {
	info.Finish(catalog.NoError, "Enter the PIN displayed on the mock device")
}

// ConfirmPairing accepts only DisplayPinSecret for mockDisplayPin
// (spec.md §7 S4); every other class's pairing always confirms.
func (p *Plugin) ConfirmPairing(ctx context.Context, info *integration.PairingInfo, username, secret string) {
	if info.ThingClassID == ClassDisplayPinID && secret != DisplayPinSecret {
		info.Finish(catalog.AuthenticationFailure, "incorrect PIN")
		return
	}
	info.Finish(catalog.NoError, "")
}

// ExecuteAction handles the explicit ping action on mockJustAdd plus
// the induced write-actions on the generic IO/temperature classes
// (spec.md §7 S6).
func (p *Plugin) ExecuteAction(ctx context.Context, info *integration.ActionInfo) {
	switch info.ActionTypeID {
	case ActionPingID:
		p.mu.Lock()
		state := p.justAdd[info.Thing.ID]
		p.mu.Unlock()
		if state.broken {
			info.Finish(catalog.HardwareFailure, "mock thing is broken")
			return
		}
		finish := func() {
			p.deps.ThingManager.EmitEvent(ctx, info.Thing.ID, EventPingedID, nil)
			info.Finish(catalog.NoError, "")
		}
		if state.async {
			go func() {
				time.Sleep(10 * time.Millisecond)
				finish()
			}()
			return
		}
		finish()

	case StateDigitalID, StateAnalogID, StateTemperatureID:
		value := info.Params.Value(info.ActionTypeID)
		if err := p.deps.ThingManager.SetStateValue(ctx, info.Thing.ID, info.ActionTypeID, value); err != nil {
			info.Finish(catalog.HardwareFailure, err.Error())
			return
		}
		info.Finish(catalog.NoError, "")

	default:
		info.Finish(catalog.ActionTypeNotFound, "")
	}
}

// BrowseThing serves a fixed two-level tree on mockJustAdd, enough to
// exercise the façade's browsing surface.
func (p *Plugin) BrowseThing(ctx context.Context, result *integration.BrowseResult) {
	if result.Thing.ThingClassID != ClassJustAddID {
		result.Finish(catalog.ItemNotFound, "")
		return
	}
	switch result.ItemID {
	case "":
		result.AddItem(catalog.BrowserItem{ID: BrowserItemLeaf, DisplayName: "Leaf Switch", Executable: true, ActionTypeIDs: []uuid.UUID{BrowserActionPressID}})
		result.AddItem(catalog.BrowserItem{ID: BrowserItemFolder, DisplayName: "Subfolder", Browsable: true})
		result.Finish(catalog.NoError, "")
	case BrowserItemFolder:
		result.AddItem(catalog.BrowserItem{ID: BrowserItemNested, DisplayName: "Nested Item", Executable: true, ActionTypeIDs: []uuid.UUID{BrowserActionPressID}})
		result.Finish(catalog.NoError, "")
	default:
		result.Finish(catalog.ItemNotFound, "")
	}
}

// BrowserItem resolves one of the three fixed ids BrowseThing serves.
func (p *Plugin) BrowserItem(ctx context.Context, result *integration.BrowserItemResult) {
	switch result.ItemID {
	case BrowserItemLeaf:
		result.SetItem(catalog.BrowserItem{ID: BrowserItemLeaf, DisplayName: "Leaf Switch", Executable: true, ActionTypeIDs: []uuid.UUID{BrowserActionPressID}})
	case BrowserItemFolder:
		result.SetItem(catalog.BrowserItem{ID: BrowserItemFolder, DisplayName: "Subfolder", Browsable: true})
	case BrowserItemNested:
		result.SetItem(catalog.BrowserItem{ID: BrowserItemNested, DisplayName: "Nested Item", Executable: true, ActionTypeIDs: []uuid.UUID{BrowserActionPressID}})
	default:
		result.Finish(catalog.ItemNotFound, "")
		return
	}
	result.Finish(catalog.NoError, "")
}

// ExecuteBrowserItem invokes the leaf/nested items' default action;
// the folder item is not executable.
func (p *Plugin) ExecuteBrowserItem(ctx context.Context, info *integration.BrowserActionInfo) {
	switch info.ItemID {
	case BrowserItemLeaf, BrowserItemNested:
		info.Finish(catalog.NoError, "")
	case BrowserItemFolder:
		info.Finish(catalog.ItemNotExecutable, "")
	default:
		info.Finish(catalog.ItemNotFound, "")
	}
}

// ExecuteBrowserItemAction invokes the "press" action on the leaf/nested items.
func (p *Plugin) ExecuteBrowserItemAction(ctx context.Context, info *integration.BrowserItemActionInfo) {
	if info.ActionTypeID != BrowserActionPressID {
		info.Finish(catalog.ActionTypeNotFound, "")
		return
	}
	switch info.ItemID {
	case BrowserItemLeaf, BrowserItemNested:
		info.Finish(catalog.NoError, "")
	default:
		info.Finish(catalog.ItemNotFound, "")
	}
}

// ThingRemoved drops the per-thing setup bookkeeping. The childCreated
// mark is kept, because ReconfigureThing also calls ThingRemoved ahead
// of its repeat PostSetupThing and the parent already has its child.
func (p *Plugin) ThingRemoved(ctx context.Context, thingID uuid.UUID) {
	p.mu.Lock()
	delete(p.justAdd, thingID)
	p.mu.Unlock()
}

func (p *Plugin) PluginConfigurationChanged(ctx context.Context, config catalog.ParamList) {}
