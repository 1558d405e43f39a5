// Package integration provides the public SDK types for home-hub
// integration plugins: the lifecycle contract every plugin implements,
// the dependencies the host injects, and the event bus / store / HTTP
// abstractions shared across the core. Adapted from the teacher's
// pkg/plugin SDK and generalized to the Integration Core's thing
// lifecycle (spec.md §4.3).
package integration

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/pkg/catalog"
)

// API version constants for plugin compatibility checking. The host
// rejects plugins outside the supported range.
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// Plugin is the generic lifecycle contract the host's registry manages
// for every module it loads: metadata plus Init/Start/Stop in
// dependency order. This is the surface internal/registry depends on.
type Plugin interface {
	// Info returns the plugin's metadata, dependency declarations, and
	// the catalog facts (vendors/thing classes) it contributes.
	Info() PluginInfo

	// Init initializes the plugin with its dependencies. Called once,
	// in dependency order, before Start.
	Init(ctx context.Context, deps Dependencies) error

	// Start begins the plugin's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the plugin.
	Stop(ctx context.Context) error
}

// ThingIntegration is the contract an integration plugin implements on
// top of Plugin to participate in the thing lifecycle (spec.md §4.3):
// discovery, pairing, setup, actions, and browsing. internal/host type
// -asserts registered Plugins to ThingIntegration before routing any of
// these calls to them.
type ThingIntegration interface {
	Plugin

	// StartMonitoringAutoThings is invoked once after initial thing
	// revival on startup; plugins that create Auto things should begin
	// announcing them (via Dependencies.ThingManager.AutoThingsAppeared)
	// only after this call.
	StartMonitoringAutoThings(ctx context.Context)

	// DiscoverThings services a ThingDiscoveryInfo. The plugin populates
	// info with descriptors and calls info.Finish when done.
	DiscoverThings(ctx context.Context, info *DiscoveryInfo)

	// SetupThing services a ThingSetupInfo for a newly-instantiated or
	// reconfigured Thing.
	SetupThing(ctx context.Context, info *SetupInfo)

	// PostSetupThing is a fire-and-forget notification sent after a
	// Thing's setup completes successfully.
	PostSetupThing(ctx context.Context, thing catalog.Thing)

	// StartPairing begins a pairing transaction.
	StartPairing(ctx context.Context, info *PairingInfo)

	// ConfirmPairing completes a pairing transaction with a
	// user-supplied secret/username (display-pin, enter-pin, or
	// user+password setup methods).
	ConfirmPairing(ctx context.Context, info *PairingInfo, username, secret string)

	// ExecuteAction services a ThingActionInfo.
	ExecuteAction(ctx context.Context, info *ActionInfo)

	// BrowseThing lists the children of a browser item (or the root if
	// itemID is empty).
	BrowseThing(ctx context.Context, result *BrowseResult)

	// BrowserItem resolves a single browser item by id.
	BrowserItem(ctx context.Context, result *BrowserItemResult)

	// ExecuteBrowserItem invokes the default action of a browser item.
	ExecuteBrowserItem(ctx context.Context, info *BrowserActionInfo)

	// ExecuteBrowserItemAction invokes a named action on a browser item.
	ExecuteBrowserItemAction(ctx context.Context, info *BrowserItemActionInfo)

	// ThingRemoved notifies the plugin that a Thing has been torn down
	// (also sent ahead of a reconfigure's fresh SetupThing call).
	ThingRemoved(ctx context.Context, thingID uuid.UUID)

	// PluginConfigurationChanged notifies the plugin that its own
	// (not per-thing) configuration has changed.
	PluginConfigurationChanged(ctx context.Context, config catalog.ParamList)
}

// PluginInfo contains plugin metadata, dependency declarations, and the
// catalog facts the plugin contributes (registered by the host before
// Init).
type PluginInfo struct {
	ID           uuid.UUID
	Name         string
	Version      string
	Description  string
	Dependencies []string
	Required     bool
	Roles        []string
	APIVersion   int

	Catalog            catalog.PluginCatalog
	ConfigParamTypes   []catalog.ParamType
}

// Dependencies provides controlled access to shared services. Injected by
// the host during Init.
type Dependencies struct {
	Config       Config
	Logger       *zap.Logger
	Bus          EventBus
	Plugins      PluginResolver
	Store        Store
	ThingManager ThingManager
}

// ThingManager is the outbound surface available to plugins: announcing
// auto-created things, reporting their disappearance, and reporting state
// changes / arbitrary events (spec.md §4.3's "Outbound signals").
type ThingManager interface {
	AutoThingsAppeared(ctx context.Context, pluginID uuid.UUID, descriptors []catalog.ThingDescriptor)
	AutoThingDisappeared(ctx context.Context, thingID uuid.UUID)
	EmitEvent(ctx context.Context, thingID uuid.UUID, eventTypeID uuid.UUID, params catalog.ParamList)
	SetStateValue(ctx context.Context, thingID uuid.UUID, stateTypeID uuid.UUID, value any) error
}

// Route represents an HTTP route exposed by a plugin (e.g. for an
// OAuth redirect target) or by the façade itself.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// HTTPProvider is implemented by plugins/modules that expose HTTP routes.
type HTTPProvider interface {
	Routes() []Route
}

// Validator is implemented by plugins that need post-Init configuration
// validation distinct from returning an error from Init itself.
type Validator interface {
	ValidateConfig() error
}

// HealthStatus represents a plugin's health report.
type HealthStatus struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Config abstracts configuration access. Wraps Viper in the concrete
// implementation (internal/config), replaceable for tests.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus provides typed publish/subscribe for inter-component
// communication (spec component C7).
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Event represents a typed message on the event bus.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler processes events from the bus.
type EventHandler func(ctx context.Context, event Event)

// Subscription declares a topic subscription.
type Subscription struct {
	Topic   string
	Handler EventHandler
}

// EventSubscriber is implemented by plugins that declare topic
// subscriptions to be wired automatically against Dependencies.Bus
// once Init succeeds.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// PluginResolver allows plugins/modules to locate other plugins by name
// or role.
type PluginResolver interface {
	Resolve(name string) (Plugin, bool)
	ResolveByRole(role string) []Plugin
}

// Migration is one versioned schema change applied by Store.Migrate.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store abstracts the shared persistence layer: a single SQLite database
// with a migration-tracking table per owning component.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, ownerName string, migrations []Migration) error
	Close() error
}
