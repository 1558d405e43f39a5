package host

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/registry"
	"github.com/homehub/homehub/internal/store"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func tempStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "host.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakePlugin is a minimal ThingIntegration stub used to exercise Host's
// catalog registration, config persistence, and routing.
type fakePlugin struct {
	info              integration.PluginInfo
	monitoringStarted int
	lastConfig        catalog.ParamList
}

func newFakePlugin(vendorID, classID uuid.UUID, configParamTypeID uuid.UUID) *fakePlugin {
	return &fakePlugin{
		info: integration.PluginInfo{
			ID:      uuid.New(),
			Name:    "acme",
			Version: "1.0.0",
			Catalog: catalog.PluginCatalog{
				Vendors:      []catalog.Vendor{{ID: vendorID, Name: "acme", DisplayName: "Acme"}},
				ThingClasses: []catalog.ThingClass{{ID: classID, VendorID: vendorID, Name: "bulb", DisplayName: "Bulb"}},
			},
			ConfigParamTypes: []catalog.ParamType{
				{ID: configParamTypeID, Name: "pollSeconds", ValueType: catalog.ValueInt, DefaultValue: 30},
			},
		},
	}
}

func (p *fakePlugin) Info() integration.PluginInfo                       { return p.info }
func (p *fakePlugin) Init(ctx context.Context, deps integration.Dependencies) error { return nil }
func (p *fakePlugin) Start(ctx context.Context) error                    { return nil }
func (p *fakePlugin) Stop(ctx context.Context) error                     { return nil }
func (p *fakePlugin) StartMonitoringAutoThings(ctx context.Context)      { p.monitoringStarted++ }
func (p *fakePlugin) DiscoverThings(ctx context.Context, info *integration.DiscoveryInfo)   {}
func (p *fakePlugin) SetupThing(ctx context.Context, info *integration.SetupInfo)           {}
func (p *fakePlugin) PostSetupThing(ctx context.Context, thing catalog.Thing)               {}
func (p *fakePlugin) StartPairing(ctx context.Context, info *integration.PairingInfo)        {}
func (p *fakePlugin) ConfirmPairing(ctx context.Context, info *integration.PairingInfo, username, secret string) {
}
func (p *fakePlugin) ExecuteAction(ctx context.Context, info *integration.ActionInfo) {}
func (p *fakePlugin) BrowseThing(ctx context.Context, result *integration.BrowseResult)              {}
func (p *fakePlugin) BrowserItem(ctx context.Context, result *integration.BrowserItemResult)          {}
func (p *fakePlugin) ExecuteBrowserItem(ctx context.Context, info *integration.BrowserActionInfo)     {}
func (p *fakePlugin) ExecuteBrowserItemAction(ctx context.Context, info *integration.BrowserItemActionInfo) {
}
func (p *fakePlugin) ThingRemoved(ctx context.Context, thingID uuid.UUID) {}
func (p *fakePlugin) PluginConfigurationChanged(ctx context.Context, config catalog.ParamList) {
	p.lastConfig = config
}

func newTestHost(t *testing.T, plugin *fakePlugin) (*Host, *store.SQLiteStore) {
	t.Helper()
	db := tempStore(t)
	reg := registry.New(testLogger())
	if err := reg.Register(plugin); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cat := catalog.New(testLogger())
	h := New(reg, cat, db, nil, testLogger())
	if err := h.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return h, db
}

func TestRegisterCatalogs_FeedsPluginVendorsAndClasses(t *testing.T) {
	vendorID, classID := uuid.New(), uuid.New()
	plugin := newFakePlugin(vendorID, classID, uuid.New())
	h, _ := newTestHost(t, plugin)

	h.RegisterCatalogs()

	if _, ok := h.cat.FindThingClass(classID); !ok {
		t.Fatal("FindThingClass() = not found, want the plugin's registered class")
	}
}

func TestPluginConfiguration_DefaultsBeforeAnySet(t *testing.T) {
	paramTypeID := uuid.New()
	plugin := newFakePlugin(uuid.New(), uuid.New(), paramTypeID)
	h, _ := newTestHost(t, plugin)

	params, thingErr := h.PluginConfiguration(plugin.info.ID)
	if thingErr != catalog.NoError {
		t.Fatalf("PluginConfiguration() error = %v", thingErr)
	}
	if got := params.Value(paramTypeID); got != int64(30) {
		t.Errorf("default pollSeconds = %v, want 30", got)
	}
}

func TestSetPluginConfiguration_PersistsAndNotifiesPlugin(t *testing.T) {
	paramTypeID := uuid.New()
	plugin := newFakePlugin(uuid.New(), uuid.New(), paramTypeID)
	h, db := newTestHost(t, plugin)

	candidate := catalog.ParamList{{ParamTypeID: paramTypeID, Value: 60}}
	if thingErr := h.SetPluginConfiguration(context.Background(), plugin.info.ID, candidate); thingErr != catalog.NoError {
		t.Fatalf("SetPluginConfiguration() error = %v", thingErr)
	}

	if got := plugin.lastConfig.Value(paramTypeID); got != int64(60) {
		t.Errorf("plugin.lastConfig pollSeconds = %v, want 60", got)
	}

	params, thingErr := h.PluginConfiguration(plugin.info.ID)
	if thingErr != catalog.NoError {
		t.Fatalf("PluginConfiguration() error = %v", thingErr)
	}
	if got := params.Value(paramTypeID); got != int64(60) {
		t.Errorf("PluginConfiguration() pollSeconds = %v, want 60", got)
	}

	// Revive from a fresh Host against the same store to prove persistence.
	reg := registry.New(testLogger())
	if err := reg.Register(plugin); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	h2 := New(reg, catalog.New(testLogger()), db, nil, testLogger())
	if err := h2.LoadConfig(context.Background()); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	revived, thingErr := h2.PluginConfiguration(plugin.info.ID)
	if thingErr != catalog.NoError {
		t.Fatalf("PluginConfiguration() after reload error = %v", thingErr)
	}
	if got := revived.Value(paramTypeID); got != int64(60) {
		t.Errorf("revived pollSeconds = %v, want 60", got)
	}
}

func TestSetPluginConfiguration_UnknownPlugin(t *testing.T) {
	plugin := newFakePlugin(uuid.New(), uuid.New(), uuid.New())
	h, _ := newTestHost(t, plugin)

	thingErr := h.SetPluginConfiguration(context.Background(), uuid.New(), nil)
	if thingErr != catalog.PluginNotFound {
		t.Errorf("SetPluginConfiguration() for unknown plugin = %v, want PluginNotFound", thingErr)
	}
}

func TestStartMonitoringAutoThings_InvokesEveryThingIntegration(t *testing.T) {
	plugin := newFakePlugin(uuid.New(), uuid.New(), uuid.New())
	h, _ := newTestHost(t, plugin)

	h.StartMonitoringAutoThings(context.Background())

	if plugin.monitoringStarted != 1 {
		t.Errorf("monitoringStarted = %d, want 1", plugin.monitoringStarted)
	}
}

func TestThingIntegration_ResolvesRegisteredPlugin(t *testing.T) {
	plugin := newFakePlugin(uuid.New(), uuid.New(), uuid.New())
	h, _ := newTestHost(t, plugin)

	ti, ok := h.ThingIntegration(plugin.info.ID)
	if !ok {
		t.Fatal("ThingIntegration() ok = false, want true")
	}
	ti.StartMonitoringAutoThings(context.Background())
	if plugin.monitoringStarted != 1 {
		t.Errorf("monitoringStarted = %d, want 1", plugin.monitoringStarted)
	}
}

func TestThingIntegration_UnknownPluginNotFound(t *testing.T) {
	plugin := newFakePlugin(uuid.New(), uuid.New(), uuid.New())
	h, _ := newTestHost(t, plugin)

	if _, ok := h.ThingIntegration(uuid.New()); ok {
		t.Error("ThingIntegration() ok = true for unregistered id, want false")
	}
}
