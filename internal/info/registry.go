package info

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// Registry tracks every in-flight Info object so the host can inspect,
// or on shutdown drain, calls still awaiting a plugin's reply. Entries
// remove themselves once their Done channel closes.
type Registry struct {
	mu      sync.Mutex
	pending map[*integration.Base]string
	logger  *zap.Logger
}

// NewRegistry creates an empty Info registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		pending: make(map[*integration.Base]string),
		logger:  logger,
	}
}

// Pending returns the number of Info objects awaiting Finish.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) track(base *integration.Base, label string) {
	r.mu.Lock()
	r.pending[base] = label
	r.mu.Unlock()

	go func() {
		<-base.Done()
		r.mu.Lock()
		delete(r.pending, base)
		r.mu.Unlock()
	}()
}

// NewDiscoveryInfo creates and tracks a DiscoveryInfo.
func (r *Registry) NewDiscoveryInfo(thingClassID uuid.UUID, params catalog.ParamList, timeout time.Duration) *integration.DiscoveryInfo {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultDiscoveryTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.DiscoveryInfo{Base: base, ThingClassID: thingClassID, Params: params}
	r.track(base, "discovery:"+thingClassID.String())
	return i
}

// NewPairingInfo creates and tracks a PairingInfo.
func (r *Registry) NewPairingInfo(transactionID, thingClassID uuid.UUID, thingID *uuid.UUID, name string, params catalog.ParamList, parentID *uuid.UUID, reconfigure bool, timeout time.Duration) *integration.PairingInfo {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultPairingTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.PairingInfo{
		Base:          base,
		TransactionID: transactionID,
		ThingClassID:  thingClassID,
		ThingID:       thingID,
		Name:          name,
		Params:        params,
		ParentID:      parentID,
		Reconfigure:   reconfigure,
	}
	r.track(base, "pairing:"+transactionID.String())
	return i
}

// NewSetupInfo creates and tracks a SetupInfo.
func (r *Registry) NewSetupInfo(thing catalog.Thing, initial, reconfigure bool, timeout time.Duration) *integration.SetupInfo {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultSetupTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.SetupInfo{Base: base, Thing: thing, Initial: initial, Reconfigure: reconfigure}
	r.track(base, "setup:"+thing.ID.String())
	return i
}

// NewActionInfo creates and tracks an ActionInfo.
func (r *Registry) NewActionInfo(thing catalog.Thing, actionTypeID uuid.UUID, params catalog.ParamList, timeout time.Duration) *integration.ActionInfo {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultActionTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.ActionInfo{Base: base, Thing: thing, ActionTypeID: actionTypeID, Params: params}
	r.track(base, "action:"+thing.ID.String())
	return i
}

// NewBrowseResult creates and tracks a BrowseResult.
func (r *Registry) NewBrowseResult(thing catalog.Thing, itemID, locale string, timeout time.Duration) *integration.BrowseResult {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultBrowseTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.BrowseResult{Base: base, Thing: thing, ItemID: itemID, Locale: locale}
	r.track(base, "browse:"+thing.ID.String())
	return i
}

// NewBrowserItemResult creates and tracks a BrowserItemResult.
func (r *Registry) NewBrowserItemResult(thing catalog.Thing, itemID, locale string, timeout time.Duration) *integration.BrowserItemResult {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultBrowseTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.BrowserItemResult{Base: base, Thing: thing, ItemID: itemID, Locale: locale}
	r.track(base, "browserItem:"+thing.ID.String())
	return i
}

// NewBrowserActionInfo creates and tracks a BrowserActionInfo.
func (r *Registry) NewBrowserActionInfo(thing catalog.Thing, itemID string, timeout time.Duration) *integration.BrowserActionInfo {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultActionTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.BrowserActionInfo{Base: base, Thing: thing, ItemID: itemID}
	r.track(base, "browserAction:"+thing.ID.String())
	return i
}

// NewBrowserItemActionInfo creates and tracks a BrowserItemActionInfo.
func (r *Registry) NewBrowserItemActionInfo(thing catalog.Thing, itemID string, actionTypeID uuid.UUID, params catalog.ParamList, timeout time.Duration) *integration.BrowserItemActionInfo {
	var base *integration.Base
	base = integration.NewBase(resolveTimeout(timeout, DefaultActionTimeout), func() {
		base.Finish(catalog.Timeout, "")
	})
	i := &integration.BrowserItemActionInfo{Base: base, Thing: thing, ItemID: itemID, ActionTypeID: actionTypeID, Params: params}
	r.track(base, "browserItemAction:"+thing.ID.String())
	return i
}
