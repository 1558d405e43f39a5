package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/internal/things"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// ThingManager implements integration.ThingManager, the outbound
// surface a plugin is handed at Init time (spec.md §4.3's "outbound
// signals"). It is a thin adapter: auto-thing announcements route to
// the Lifecycle Engine's own handling of them, state writes route to
// the Thing Store, and events are published on the bus under the same
// topics the façade already subscribes to.
type ThingManager struct {
	engine *Engine
	things *things.Store
	bus    integration.EventBus
	logger *zap.Logger
}

// NewThingManager creates a ThingManager bound to the collaborators
// that actually own auto-thing bookkeeping, state, and the event bus.
func NewThingManager(engine *Engine, thingsStore *things.Store, bus integration.EventBus, logger *zap.Logger) *ThingManager {
	return &ThingManager{engine: engine, things: thingsStore, bus: bus, logger: logger}
}

// AutoThingsAppeared hands the descriptors to the Lifecycle Engine on a
// new goroutine, so a plugin may announce auto things from a hook that
// itself runs on the dispatcher (PostSetupThing) without blocking the
// dispatcher on the store write the engine queues there. pluginID is not
// needed by the engine itself (each descriptor already names its own
// ThingClassID, which the catalog resolves back to a plugin) but is
// kept on the interface since spec.md §4.3 documents it per-call.
func (m *ThingManager) AutoThingsAppeared(ctx context.Context, pluginID uuid.UUID, descriptors []catalog.ThingDescriptor) {
	go m.engine.AutoThingsAppeared(ctx, descriptors)
}

// AutoThingDisappeared forwards to the Lifecycle Engine.
func (m *ThingManager) AutoThingDisappeared(ctx context.Context, thingID uuid.UUID) {
	m.engine.AutoThingDisappeared(ctx, thingID)
}

// EmitEvent publishes a TopicEventTriggered event carrying the Thing's
// event, for the façade's EventTriggered notification (spec.md §4.9).
func (m *ThingManager) EmitEvent(ctx context.Context, thingID uuid.UUID, eventTypeID uuid.UUID, params catalog.ParamList) {
	if m.bus == nil {
		return
	}
	paramsMap := make(map[string]any, len(params))
	for _, p := range params {
		paramsMap[p.ParamTypeID.String()] = p.Value
	}
	m.bus.Publish(ctx, integration.Event{
		Topic: event.TopicEventTriggered,
		Payload: event.EventTriggeredPayload{
			ThingID:     thingID.String(),
			EventTypeID: eventTypeID.String(),
			Params:      paramsMap,
		},
	})
}

// SetStateValue writes a new state value via the Thing Store, which
// validates bounds and publishes TopicStateChanged on success
// (spec.md §4.2/§4.3).
func (m *ThingManager) SetStateValue(ctx context.Context, thingID uuid.UUID, stateTypeID uuid.UUID, value any) error {
	if terr := m.things.SetStateValue(ctx, thingID, stateTypeID, value); terr != catalog.NoError {
		return terr
	}
	return nil
}
