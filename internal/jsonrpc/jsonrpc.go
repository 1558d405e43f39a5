// Package jsonrpc implements the JSON-RPC Façade (spec component C9):
// the single namespaced entry point ("Integrations") through which a
// client discovers, adds, pairs, reconfigures, edits, removes, and
// operates Things, and through which it receives unsolicited
// notifications. Grounded on internal/ws's Hub/Client transport and
// internal/server's RouteRegistrar convention for HTTP mounting.
package jsonrpc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/homehub/homehub/internal/host"
	"github.com/homehub/homehub/internal/info"
	"github.com/homehub/homehub/internal/ioconn"
	"github.com/homehub/homehub/internal/lifecycle"
	"github.com/homehub/homehub/internal/pairing"
	"github.com/homehub/homehub/internal/things"
	"github.com/homehub/homehub/internal/ws"
	"github.com/homehub/homehub/pkg/catalog"
)

// Facade is the Integrations namespace: the thing collaborators it
// wraps own the actual state and behavior, this type only decodes
// requests, routes them, and encodes replies (spec.md §4.9).
type Facade struct {
	lifecycle  *lifecycle.Engine
	cat        *catalog.Catalog
	things     *things.Store
	host       *host.Host
	ioconn     *ioconn.Engine
	pairing    *pairing.Store
	infoReg    *info.Registry
	translator info.Translator
	logger     *zap.Logger

	descriptorsMu sync.RWMutex
	descriptors   map[uuid.UUID]catalog.ThingDescriptor
}

// New creates a Facade over its collaborators. translator may be nil,
// in which case display messages pass through untranslated.
func New(lifecycleEngine *lifecycle.Engine, cat *catalog.Catalog, thingsStore *things.Store, h *host.Host, ioconnEngine *ioconn.Engine, pairingStore *pairing.Store, infoReg *info.Registry, translator info.Translator, logger *zap.Logger) *Facade {
	return &Facade{
		lifecycle:   lifecycleEngine,
		cat:         cat,
		things:      thingsStore,
		host:        h,
		ioconn:      ioconnEngine,
		pairing:     pairingStore,
		infoReg:     infoReg,
		translator:  translator,
		logger:      logger,
		descriptors: make(map[uuid.UUID]catalog.ThingDescriptor),
	}
}

// cacheDescriptors remembers the descriptors from a DiscoverThings
// reply so a later AddThing/ReconfigureThing can resolve a
// thingDescriptorId back to its thing class and params (spec.md §7 S3).
// PairThing takes only a thingClassId and does not read this cache.
func (f *Facade) cacheDescriptors(descriptors []catalog.ThingDescriptor) {
	f.descriptorsMu.Lock()
	defer f.descriptorsMu.Unlock()
	for _, d := range descriptors {
		f.descriptors[d.ID] = d
	}
}

func (f *Facade) descriptor(id uuid.UUID) (catalog.ThingDescriptor, bool) {
	f.descriptorsMu.RLock()
	defer f.descriptorsMu.RUnlock()
	d, ok := f.descriptors[id]
	return d, ok
}

// asyncMethods names the methods that suspend on a plugin round-trip
// and therefore must be dispatched off the request-handling goroutine,
// replying later by reusing the originating request id (spec.md §4.9).
var asyncMethods = map[string]bool{
	"DiscoverThings":           true,
	"AddThing":                 true,
	"PairThing":                true,
	"ConfirmPairing":           true,
	"ReconfigureThing":         true,
	"BrowseThing":              true,
	"GetBrowserItem":           true,
	"ExecuteAction":            true,
	"ExecuteBrowserItem":       true,
	"ExecuteBrowserItemAction": true,
}

// Handle implements ws.RequestHandler. Synchronous methods return their
// Response directly; async methods are dispatched on their own
// goroutine and reply later via c.Send, so Handle returns nil for them.
func (f *Facade) Handle(ctx context.Context, c *ws.Client, req ws.Request) *ws.Response {
	if asyncMethods[req.Method] {
		go func() {
			c.Send(f.dispatch(ctx, req))
		}()
		return nil
	}
	return f.dispatch(ctx, req)
}

// HandleSync runs a request to completion and returns its Response
// directly, for transports without an async reply channel (the HTTP
// POST mount). Calling a method from asyncMethods here simply blocks
// the HTTP request until the plugin round-trip finishes.
func (f *Facade) HandleSync(ctx context.Context, req ws.Request) *ws.Response {
	return f.dispatch(ctx, req)
}

func (f *Facade) translate(pluginID uuid.UUID, message, locale string) string {
	if message == "" || f.translator == nil {
		return message
	}
	if _, err := language.Parse(locale); err != nil {
		locale = ""
	}
	return f.translator.Translate(pluginID, message, locale)
}

func errorResponse(id uint64, terr catalog.ThingError) *ws.Response {
	return &ws.Response{ID: id, Status: ws.StatusError, Params: map[string]any{"thingError": terr}}
}

func successResponse(id uint64, params any) *ws.Response {
	return &ws.Response{ID: id, Status: ws.StatusSuccess, Params: params}
}

func pluginOf(cat *catalog.Catalog, thingClassID uuid.UUID) (uuid.UUID, bool) {
	cls, ok := cat.FindThingClass(thingClassID)
	if !ok {
		return uuid.Nil, false
	}
	return cls.PluginID, true
}
