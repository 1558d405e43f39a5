// Package lifecycle implements the Lifecycle Engine (spec component
// C5): the state machine every Thing moves through, from discovery or
// pairing through setup, reconfiguration, and removal. Grounded on
// nymea devicemanager.cpp's addConfiguredDeviceInternal/setupDevice
// call sequence (validate before plugin dispatch, persist only after
// the plugin reports success, revert on failure), translated into
// explicit Go (T, catalog.ThingError) returns.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/dispatch"
	"github.com/homehub/homehub/internal/host"
	"github.com/homehub/homehub/internal/info"
	"github.com/homehub/homehub/internal/pairing"
	"github.com/homehub/homehub/internal/things"
	"github.com/homehub/homehub/pkg/catalog"
)

// Engine owns the thing lifecycle: every operation that adds,
// reconfigures, edits, or removes a Thing passes through here, and
// every call that crosses the plugin boundary suspends on its Info
// object's Done channel before the engine returns.
type Engine struct {
	things   *things.Store
	cat      *catalog.Catalog
	host     *host.Host
	infoReg  *info.Registry
	pairing  *pairing.Store
	disp     *dispatch.Dispatcher
	resolver things.RemovePolicyResolver
	logger   *zap.Logger
}

// New creates a Lifecycle Engine wired to its collaborators.
// resolver may be nil if no rule engine is present yet.
func New(thingsStore *things.Store, cat *catalog.Catalog, h *host.Host, infoReg *info.Registry, pairingStore *pairing.Store, disp *dispatch.Dispatcher, resolver things.RemovePolicyResolver, logger *zap.Logger) *Engine {
	return &Engine{
		things:   thingsStore,
		cat:      cat,
		host:     h,
		infoReg:  infoReg,
		pairing:  pairingStore,
		disp:     disp,
		resolver: resolver,
		logger:   logger,
	}
}

// doStore runs fn — a Thing Store mutation — on the dispatcher so every
// state-machine transition is serialized with Info-finish callbacks and
// other concurrent operations (spec.md §5). A ctx cancellation while
// waiting for the dispatcher surfaces as Timeout.
func (e *Engine) doStore(ctx context.Context, fn func() catalog.ThingError) catalog.ThingError {
	var result catalog.ThingError
	if err := e.disp.Do(ctx, func() error {
		result = fn()
		return nil
	}); err != nil {
		return catalog.Timeout
	}
	return result
}

// DiscoverThings requests a ThingDiscoveryInfo from the class's owning
// plugin and augments each returned descriptor with ThingID where its
// params already match an already-configured Thing of the same class
// (the default identity-match function, spec.md §4.5).
func (e *Engine) DiscoverThings(ctx context.Context, thingClassID uuid.UUID, params catalog.ParamList) (descriptors []catalog.ThingDescriptor, displayMessage string, terr catalog.ThingError) {
	defer func() { observeOp("discoverThings", string(terr)) }()

	cls, ok := e.cat.FindThingClass(thingClassID)
	if !ok {
		return nil, "", catalog.ThingClassNotFound
	}
	if !cls.SupportsCreateMethod(catalog.CreateDiscovery) {
		return nil, "", catalog.CreationMethodNotSupported
	}
	normalized, terr := catalog.ValidateParams(cls.DiscoveryParamTypes, params)
	if terr != catalog.NoError {
		return nil, "", terr
	}
	ti, ok := e.host.ThingIntegration(cls.PluginID)
	if !ok {
		return nil, "", catalog.PluginNotFound
	}

	discoveryInfo := e.infoReg.NewDiscoveryInfo(thingClassID, normalized, 0)
	ti.DiscoverThings(ctx, discoveryInfo)
	<-discoveryInfo.Done()

	if discoveryInfo.Status() != catalog.NoError {
		return nil, discoveryInfo.DisplayMessage(), discoveryInfo.Status()
	}

	descriptors = discoveryInfo.ThingDescriptors()
	for i, d := range descriptors {
		if match, ok := e.matchExisting(cls.ID, d.Params); ok {
			descriptors[i].ThingID = &match
		}
	}
	return descriptors, discoveryInfo.DisplayMessage(), catalog.NoError
}

func (e *Engine) matchExisting(thingClassID uuid.UUID, params catalog.ParamList) (uuid.UUID, bool) {
	for _, t := range e.things.FindByClass(thingClassID) {
		if paramsEqual(t.Params, params) {
			return t.ID, true
		}
	}
	return uuid.Nil, false
}

func paramsEqual(a, b catalog.ParamList) bool {
	if len(a) != len(b) {
		return false
	}
	for _, pa := range a {
		if !b.Has(pa.ParamTypeID) {
			return false
		}
		if fmt.Sprint(b.Value(pa.ParamTypeID)) != fmt.Sprint(pa.Value) {
			return false
		}
	}
	return true
}

// AddThing instantiates a Thing directly from a class and user-supplied
// params (the "just add" dispatch path, spec.md §4.5 AddThing(2)).
func (e *Engine) AddThing(ctx context.Context, thingClassID uuid.UUID, name string, params catalog.ParamList, parentID *uuid.UUID) (thingID uuid.UUID, displayMessage string, terr catalog.ThingError) {
	defer func() { observeOp("addThing", string(terr)) }()

	cls, ok := e.cat.FindThingClass(thingClassID)
	if !ok {
		return uuid.Nil, "", catalog.ThingClassNotFound
	}
	if !cls.SupportsCreateMethod(catalog.CreateJustAdd) {
		return uuid.Nil, "", catalog.CreationMethodNotSupported
	}
	if cls.SetupMethod != catalog.SetupJustAdd {
		return uuid.Nil, "", catalog.SetupMethodNotSupported
	}
	normalized, terr := catalog.ValidateParams(cls.ParamTypes, params)
	if terr != catalog.NoError {
		return uuid.Nil, "", terr
	}
	if parentID != nil {
		if _, ok := e.things.Find(*parentID); !ok {
			return uuid.Nil, "", catalog.ThingNotFound
		}
	}

	thing := catalog.Thing{
		ID:           uuid.New(),
		ThingClassID: thingClassID,
		Name:         name,
		ParentID:     parentID,
		Params:       normalized,
	}
	return e.setupAndAdd(ctx, cls, thing, true, false)
}

// AddThingFromDescriptor instantiates a Thing from a discovery/auto-
// things descriptor (the descriptor dispatch path, spec.md §4.5
// AddThing(1)). If the descriptor carries a ThingID, this is treated as
// a reconfigure instead of an add. overrideParams, if non-nil, replace
// matching descriptor params before validation.
func (e *Engine) AddThingFromDescriptor(ctx context.Context, descriptor catalog.ThingDescriptor, name string, overrideParams catalog.ParamList, autoCreated bool) (thingID uuid.UUID, displayMessage string, terr catalog.ThingError) {
	defer func() { observeOp("addThingFromDescriptor", string(terr)) }()

	if descriptor.ThingID != nil {
		displayMessage, terr = e.ReconfigureThing(ctx, *descriptor.ThingID, coalesceParams(descriptor.Params, overrideParams))
		return *descriptor.ThingID, displayMessage, terr
	}

	cls, ok := e.cat.FindThingClass(descriptor.ThingClassID)
	if !ok {
		return uuid.Nil, "", catalog.ThingClassNotFound
	}

	params := coalesceParams(descriptor.Params, overrideParams)
	normalized, terr := catalog.ValidateParams(cls.ParamTypes, params)
	if terr != catalog.NoError {
		return uuid.Nil, "", terr
	}

	newID := descriptor.ID
	if newID == uuid.Nil {
		newID = uuid.New()
	}
	if name == "" {
		name = descriptor.Title
	}

	thing := catalog.Thing{
		ID:           newID,
		ThingClassID: descriptor.ThingClassID,
		Name:         name,
		ParentID:     descriptor.ParentID,
		Params:       normalized,
		AutoCreated:  autoCreated,
	}
	return e.setupAndAdd(ctx, cls, thing, true, false)
}

func coalesceParams(base, overrides catalog.ParamList) catalog.ParamList {
	out := append(catalog.ParamList(nil), base...)
	for _, o := range overrides {
		replaced := false
		for i, b := range out {
			if b.ParamTypeID == o.ParamTypeID {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

// setupAndAdd drives a ThingSetupInfo to completion and, on success,
// persists the Thing and fires its post-setup notification
// (spec.md §4.5 AddThing's shared setup tail).
func (e *Engine) setupAndAdd(ctx context.Context, cls catalog.ThingClass, thing catalog.Thing, initial, reconfigure bool) (uuid.UUID, string, catalog.ThingError) {
	ti, ok := e.host.ThingIntegration(cls.PluginID)
	if !ok {
		return uuid.Nil, "", catalog.PluginNotFound
	}

	thing.SetupStatus = catalog.SetupInProgress
	setupInfo := e.infoReg.NewSetupInfo(thing, initial, reconfigure, 0)
	ti.SetupThing(ctx, setupInfo)
	<-setupInfo.Done()

	if setupInfo.Status() != catalog.NoError {
		e.logger.Warn("thing setup failed",
			zap.String("thing_id", thing.ID.String()),
			zap.String("status", string(setupInfo.Status())),
		)
		return uuid.Nil, setupInfo.DisplayMessage(), setupInfo.Status()
	}

	thing.SetupStatus = catalog.SetupComplete
	if terr := e.doStore(ctx, func() catalog.ThingError {
		return e.things.Add(ctx, thing)
	}); terr != catalog.NoError {
		return uuid.Nil, setupInfo.DisplayMessage(), terr
	}

	e.disp.Post(ctx, func() { ti.PostSetupThing(ctx, thing) })
	return thing.ID, setupInfo.DisplayMessage(), catalog.NoError
}

// ReconfigureThing applies a new set of non-readOnly params to an
// existing Thing (spec.md §4.5). The plugin's running instance is torn
// down and re-set-up with the candidate params; nothing is persisted
// until the new setup succeeds, so a failure leaves the store
// untouched — the plugin is simply re-set-up with the original params
// so its live instance matches what's on disk.
func (e *Engine) ReconfigureThing(ctx context.Context, thingID uuid.UUID, params catalog.ParamList) (displayMessage string, terr catalog.ThingError) {
	defer func() { observeOp("reconfigureThing", string(terr)) }()

	existing, ok := e.things.Find(thingID)
	if !ok {
		return "", catalog.ThingNotFound
	}
	cls, ok := e.cat.FindThingClass(existing.ThingClassID)
	if !ok {
		return "", catalog.ThingClassNotFound
	}
	ti, ok := e.host.ThingIntegration(cls.PluginID)
	if !ok {
		return "", catalog.PluginNotFound
	}

	normalized, terr := catalog.ValidateParams(cls.ParamTypes, params)
	if terr != catalog.NoError {
		return "", terr
	}

	// (a) tear down the running instance.
	ti.ThingRemoved(ctx, thingID)

	// (b) candidate Thing with the new params, keeping state values,
	// not yet persisted.
	candidate := existing.Clone()
	candidate.Params = normalized
	candidate.SetupStatus = catalog.SetupInProgress

	// (c) fresh setup.
	setupInfo := e.infoReg.NewSetupInfo(candidate, false, true, 0)
	ti.SetupThing(ctx, setupInfo)
	<-setupInfo.Done()

	if setupInfo.Status() != catalog.NoError {
		// (d) revert: nothing was persisted, so restore the plugin's
		// live instance to the params still on disk.
		revertInfo := e.infoReg.NewSetupInfo(existing, false, true, 0)
		ti.SetupThing(ctx, revertInfo)
		<-revertInfo.Done()
		return setupInfo.DisplayMessage(), setupInfo.Status()
	}

	if terr := e.doStore(ctx, func() catalog.ThingError {
		return e.things.SetParams(ctx, thingID, normalized)
	}); terr != catalog.NoError {
		return setupInfo.DisplayMessage(), terr
	}

	candidate.SetupStatus = catalog.SetupComplete
	e.disp.Post(ctx, func() { ti.PostSetupThing(ctx, candidate) })
	return setupInfo.DisplayMessage(), catalog.NoError
}

// EditThing changes a Thing's human-readable name only; it never
// re-runs setup (spec.md §4.5).
func (e *Engine) EditThing(ctx context.Context, thingID uuid.UUID, name string) (terr catalog.ThingError) {
	defer func() { observeOp("editThing", string(terr)) }()

	return e.doStore(ctx, func() catalog.ThingError {
		return e.things.Rename(ctx, thingID, name)
	})
}

// RemoveThing tears down a Thing and its descendants in the plugin,
// then removes them from the store in one cascade (spec.md §4.5).
func (e *Engine) RemoveThing(ctx context.Context, thingID uuid.UUID) (ruleIDs []uuid.UUID, terr catalog.ThingError) {
	defer func() { observeOp("removeThing", string(terr)) }()

	if _, ok := e.things.Find(thingID); !ok {
		return nil, catalog.ThingNotFound
	}

	e.notifyThingRemoved(ctx, thingID)

	terr = e.doStore(ctx, func() catalog.ThingError {
		var inner catalog.ThingError
		ruleIDs, inner = e.things.Remove(ctx, thingID, e.resolver)
		return inner
	})
	return ruleIDs, terr
}

// notifyThingRemoved calls the owning plugin's ThingRemoved hook for
// thingID and every descendant, children first, so a plugin is never
// asked to report on a child whose parent it already believes gone.
func (e *Engine) notifyThingRemoved(ctx context.Context, thingID uuid.UUID) {
	for _, child := range e.things.FindChildren(thingID) {
		e.notifyThingRemoved(ctx, child.ID)
	}
	t, ok := e.things.Find(thingID)
	if !ok {
		return
	}
	cls, ok := e.cat.FindThingClass(t.ThingClassID)
	if !ok {
		return
	}
	if ti, ok := e.host.ThingIntegration(cls.PluginID); ok {
		ti.ThingRemoved(ctx, thingID)
	}
}

// AutoThingsAppeared processes a plugin's autoThingsAppeared
// announcement: each descriptor is treated as an AddThing with
// autoCreated=true, or a reconfigure if it already carries a ThingID
// (spec.md §4.5 "Auto things").
func (e *Engine) AutoThingsAppeared(ctx context.Context, descriptors []catalog.ThingDescriptor) {
	for _, d := range descriptors {
		if _, _, terr := e.AddThingFromDescriptor(ctx, d, d.Title, nil, true); terr != catalog.NoError {
			e.logger.Warn("auto thing add failed",
				zap.String("descriptor_id", d.ID.String()),
				zap.String("status", string(terr)),
			)
		}
	}
}

// AutoThingDisappeared processes a plugin's autoThingDisappeared
// announcement: treated as a RemoveThing only if the Thing is
// AutoCreated; disappear signals on user-created Things are ignored
// with a warning (spec.md §4.5 "Auto things").
func (e *Engine) AutoThingDisappeared(ctx context.Context, thingID uuid.UUID) {
	t, ok := e.things.Find(thingID)
	if !ok {
		e.logger.Warn("autoThingDisappeared for unknown thing", zap.String("thing_id", thingID.String()))
		return
	}
	if !t.AutoCreated {
		e.logger.Warn("autoThingDisappeared for non-auto-created thing, ignoring", zap.String("thing_id", thingID.String()))
		return
	}
	if _, terr := e.RemoveThing(ctx, thingID); terr != catalog.NoError {
		e.logger.Warn("autoThingDisappeared remove failed",
			zap.String("thing_id", thingID.String()),
			zap.String("status", string(terr)),
		)
	}
}

// PairResult is the outcome of a successful PairThing call.
type PairResult struct {
	Transaction    catalog.PairingTransaction
	SetupMethod    catalog.SetupMethod
	DisplayMessage string
}

// PairThing begins a pairing transaction for a class whose SetupMethod
// requires user interaction (spec.md §4.6).
func (e *Engine) PairThing(ctx context.Context, thingClassID uuid.UUID, name string, params catalog.ParamList, parentID *uuid.UUID) (result PairResult, terr catalog.ThingError) {
	defer func() { observeOp("pairThing", string(terr)) }()

	cls, ok := e.cat.FindThingClass(thingClassID)
	if !ok {
		return PairResult{}, catalog.ThingClassNotFound
	}
	if cls.SetupMethod == catalog.SetupJustAdd {
		return PairResult{}, catalog.SetupMethodNotSupported
	}
	ti, ok := e.host.ThingIntegration(cls.PluginID)
	if !ok {
		return PairResult{}, catalog.PluginNotFound
	}
	normalized, terr := catalog.ValidateParams(cls.ParamTypes, params)
	if terr != catalog.NoError {
		return PairResult{}, terr
	}

	tx := e.pairing.Create(thingClassID, nil, name, normalized, parentID, cls.SetupMethod)

	pairingInfo := e.infoReg.NewPairingInfo(tx.ID, thingClassID, nil, name, normalized, parentID, false, 0)
	ti.StartPairing(ctx, pairingInfo)
	<-pairingInfo.Done()

	if pairingInfo.Status() != catalog.NoError {
		e.pairing.Fail(tx.ID)
		return PairResult{}, pairingInfo.Status()
	}

	tx.SetOAuthURL(pairingInfo.OAuthURL())
	e.pairing.Activate(tx.ID)

	return PairResult{
		Transaction:    tx.Snapshot(),
		SetupMethod:    cls.SetupMethod,
		DisplayMessage: pairingInfo.DisplayMessage(),
	}, catalog.NoError
}

// ConfirmPairing completes a pairing transaction with a user-supplied
// secret/username and, on success, runs the same setup tail as AddThing
// (spec.md §4.6).
func (e *Engine) ConfirmPairing(ctx context.Context, transactionID uuid.UUID, username, secret string) (thingID uuid.UUID, displayMessage string, terr catalog.ThingError) {
	defer func() { observeOp("confirmPairing", string(terr)) }()

	tx, terr := e.pairing.BeginConfirm(transactionID)
	if terr != catalog.NoError {
		return uuid.Nil, "", terr
	}

	cls, ok := e.cat.FindThingClass(tx.ThingClassID)
	if !ok {
		e.pairing.Finish(transactionID, false)
		return uuid.Nil, "", catalog.ThingClassNotFound
	}
	ti, ok := e.host.ThingIntegration(cls.PluginID)
	if !ok {
		e.pairing.Finish(transactionID, false)
		return uuid.Nil, "", catalog.PluginNotFound
	}

	reconfigure := tx.ThingID != nil
	pairingInfo := e.infoReg.NewPairingInfo(tx.ID, tx.ThingClassID, tx.ThingID, tx.Name, tx.Params, tx.ParentID, reconfigure, 0)
	ti.ConfirmPairing(ctx, pairingInfo, username, secret)
	<-pairingInfo.Done()

	if pairingInfo.Status() != catalog.NoError {
		e.pairing.Finish(transactionID, false)
		return uuid.Nil, pairingInfo.DisplayMessage(), pairingInfo.Status()
	}
	e.pairing.Finish(transactionID, true)

	thing := catalog.Thing{
		ID:           uuid.New(),
		ThingClassID: tx.ThingClassID,
		Name:         tx.Name,
		ParentID:     tx.ParentID,
		Params:       tx.Params,
	}
	if tx.ThingID != nil {
		thing.ID = *tx.ThingID
	}

	return e.setupAndAdd(ctx, cls, thing, !reconfigure, reconfigure)
}
