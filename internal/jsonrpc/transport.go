package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/internal/ws"
	"github.com/homehub/homehub/pkg/integration"
)

// Transport mounts the Facade on the two surfaces spec.md §4.9
// describes: a WebSocket connection carrying both requests and
// unsolicited notifications, and a stateless HTTP POST for callers
// that only need request/reply. It also subscribes to the event bus
// and turns every published event into a Notification broadcast to
// every connected WebSocket client (spec.md §4.9 notification list).
type Transport struct {
	facade *Facade
	hub    *ws.Hub
	logger *zap.Logger
}

// NewTransport wires a Transport around an already-constructed Facade.
func NewTransport(facade *Facade, logger *zap.Logger) *Transport {
	return &Transport{
		facade: facade,
		hub:    ws.NewHub(logger),
		logger: logger,
	}
}

// Subscribe wires the Transport's notification broadcast to every topic
// the façade surface cares about (spec.md §4.9's notification list).
func (t *Transport) Subscribe(bus integration.EventBus) {
	bus.Subscribe(event.TopicThingAdded, t.notify("ThingAdded"))
	bus.Subscribe(event.TopicThingChanged, t.notify("ThingChanged"))
	bus.Subscribe(event.TopicThingRemoved, t.notify("ThingRemoved"))
	bus.Subscribe(event.TopicThingSettingChanged, t.notify("ThingSettingChanged"))
	bus.Subscribe(event.TopicStateChanged, t.notify("StateChanged"))
	bus.Subscribe(event.TopicEventTriggered, t.notify("EventTriggered"))
	bus.Subscribe(event.TopicPluginConfigChanged, t.notify("PluginConfigurationChanged"))
	bus.Subscribe(event.TopicIOConnectionAdded, t.notify("IOConnectionAdded"))
	bus.Subscribe(event.TopicIOConnectionRemoved, t.notify("IOConnectionRemoved"))
}

func (t *Transport) notify(name string) integration.EventHandler {
	return func(_ context.Context, ev integration.Event) {
		t.hub.Broadcast(ws.Notification{Notification: name, Params: ev.Payload})
	}
}

// RegisterRoutes implements server.SimpleRouteRegistrar, mounting the
// façade under /api/v1/integrations (spec.md §4.9).
func (t *Transport) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/integrations/ws", t.handleWebSocket)
	mux.HandleFunc("POST /api/v1/integrations/rpc", t.handleRPC)
}

func (t *Transport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		t.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	connID := uuid.NewString()
	client := ws.NewClient(conn, connID, t.logger, t.facade.Handle)
	t.hub.Register(client)
	defer t.hub.Unregister(client)
	defer conn.CloseNow()

	client.Run(r.Context())
}

func (t *Transport) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req ws.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resp := t.facade.HandleSync(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
