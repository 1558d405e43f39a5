package jsonrpc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/homehub/homehub/internal/ws"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// dispatch decodes req.Params for the named method, runs it against the
// wrapped collaborators, and returns the terminal Response. Validation
// errors (bad params, unknown ids before any plugin call) are returned
// synchronously without involving a plugin, per spec.md §7.
func (f *Facade) dispatch(ctx context.Context, req ws.Request) *ws.Response {
	switch req.Method {
	case "GetVendors":
		return successResponse(req.ID, map[string]any{"vendors": f.cat.Vendors()})

	case "GetThingClasses":
		var p struct {
			VendorID *uuid.UUID `json:"vendorId,omitempty"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		return successResponse(req.ID, map[string]any{"thingClasses": f.cat.ThingClasses(p.VendorID)})

	case "GetPlugins":
		return successResponse(req.ID, map[string]any{"plugins": f.host.Plugins()})

	case "GetPluginConfiguration":
		var p struct {
			PluginID uuid.UUID `json:"pluginId"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		config, terr := f.host.PluginConfiguration(p.PluginID)
		if terr != catalog.NoError {
			return errorResponse(req.ID, terr)
		}
		return successResponse(req.ID, map[string]any{"configuration": config, "thingError": catalog.NoError})

	case "SetPluginConfiguration":
		var p struct {
			PluginID      uuid.UUID         `json:"pluginId"`
			Configuration catalog.ParamList `json:"configuration"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		terr := f.host.SetPluginConfiguration(ctx, p.PluginID, p.Configuration)
		return successResponse(req.ID, map[string]any{"thingError": terr})

	case "DiscoverThings":
		var p struct {
			ThingClassID   uuid.UUID         `json:"thingClassId"`
			DiscoveryParams catalog.ParamList `json:"discoveryParams"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		descriptors, displayMessage, terr := f.lifecycle.DiscoverThings(ctx, p.ThingClassID, p.DiscoveryParams)
		if terr == catalog.NoError {
			f.cacheDescriptors(descriptors)
		}
		pluginID, _ := pluginOf(f.cat, p.ThingClassID)
		return successResponse(req.ID, map[string]any{
			"thingError":      terr,
			"thingDescriptors": descriptors,
			"displayMessage":  f.translate(pluginID, displayMessage, req.Locale),
		})

	case "AddThing":
		var p struct {
			ThingClassID     *uuid.UUID        `json:"thingClassId,omitempty"`
			Name             string            `json:"name"`
			ThingDescriptorID *uuid.UUID        `json:"thingDescriptorId,omitempty"`
			ThingParams      catalog.ParamList `json:"thingParams,omitempty"`
			ParentID         *uuid.UUID        `json:"parentId,omitempty"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		var (
			thingID        uuid.UUID
			displayMessage string
			terr           catalog.ThingError
			pluginID       uuid.UUID
		)
		if p.ThingDescriptorID != nil {
			descriptor, ok := f.descriptor(*p.ThingDescriptorID)
			if !ok {
				return errorResponse(req.ID, catalog.ThingClassNotFound)
			}
			pluginID, _ = pluginOf(f.cat, descriptor.ThingClassID)
			thingID, displayMessage, terr = f.lifecycle.AddThingFromDescriptor(ctx, descriptor, p.Name, p.ThingParams, false)
		} else if p.ThingClassID != nil {
			pluginID, _ = pluginOf(f.cat, *p.ThingClassID)
			thingID, displayMessage, terr = f.lifecycle.AddThing(ctx, *p.ThingClassID, p.Name, p.ThingParams, p.ParentID)
		} else {
			return errorResponse(req.ID, catalog.ThingClassNotFound)
		}
		return successResponse(req.ID, map[string]any{
			"thingError":     terr,
			"thingId":        optionalID(thingID, terr),
			"displayMessage": f.translate(pluginID, displayMessage, req.Locale),
		})

	case "PairThing":
		var p struct {
			ThingClassID *uuid.UUID        `json:"thingClassId,omitempty"`
			Name         string            `json:"name,omitempty"`
			ThingParams  catalog.ParamList `json:"thingParams,omitempty"`
			ParentID     *uuid.UUID        `json:"parentId,omitempty"`
		}
		if !f.decode(req, &p) || p.ThingClassID == nil {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		result, terr := f.lifecycle.PairThing(ctx, *p.ThingClassID, p.Name, p.ThingParams, p.ParentID)
		if terr != catalog.NoError {
			return errorResponse(req.ID, terr)
		}
		pluginID, _ := pluginOf(f.cat, *p.ThingClassID)
		return successResponse(req.ID, map[string]any{
			"thingError":          catalog.NoError,
			"pairingTransactionId": result.Transaction.ID,
			"setupMethod":         result.SetupMethod,
			"displayMessage":      f.translate(pluginID, result.DisplayMessage, req.Locale),
			"oAuthUrl":            result.Transaction.OAuthURL,
		})

	case "ConfirmPairing":
		var p struct {
			PairingTransactionID uuid.UUID `json:"pairingTransactionId"`
			Username             string    `json:"username,omitempty"`
			Secret               string    `json:"secret,omitempty"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		thingID, displayMessage, terr := f.lifecycle.ConfirmPairing(ctx, p.PairingTransactionID, p.Username, p.Secret)
		return successResponse(req.ID, map[string]any{
			"thingError":     terr,
			"thingId":        optionalID(thingID, terr),
			"displayMessage": displayMessage,
		})

	case "GetThings":
		var p struct {
			ThingID *uuid.UUID `json:"thingId,omitempty"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		if p.ThingID != nil {
			thing, ok := f.things.Find(*p.ThingID)
			if !ok {
				return errorResponse(req.ID, catalog.ThingNotFound)
			}
			return successResponse(req.ID, map[string]any{"things": []catalog.Thing{thing}})
		}
		return successResponse(req.ID, map[string]any{"things": f.things.All()})

	case "ReconfigureThing":
		var p struct {
			ThingID           *uuid.UUID        `json:"thingId,omitempty"`
			ThingDescriptorID *uuid.UUID        `json:"thingDescriptorId,omitempty"`
			ThingParams       catalog.ParamList `json:"thingParams,omitempty"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		var (
			thingID        uuid.UUID
			displayMessage string
			terr           catalog.ThingError
		)
		switch {
		case p.ThingID != nil:
			thingID = *p.ThingID
			displayMessage, terr = f.lifecycle.ReconfigureThing(ctx, thingID, p.ThingParams)
		case p.ThingDescriptorID != nil:
			descriptor, ok := f.descriptor(*p.ThingDescriptorID)
			if !ok || descriptor.ThingID == nil {
				return errorResponse(req.ID, catalog.ThingNotFound)
			}
			thingID = *descriptor.ThingID
			_, displayMessage, terr = f.lifecycle.AddThingFromDescriptor(ctx, descriptor, "", p.ThingParams, false)
		default:
			return errorResponse(req.ID, catalog.ThingNotFound)
		}
		return successResponse(req.ID, map[string]any{"thingError": terr, "displayMessage": displayMessage})

	case "EditThing":
		var p struct {
			ThingID uuid.UUID `json:"thingId"`
			Name    string    `json:"name"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		terr := f.lifecycle.EditThing(ctx, p.ThingID, p.Name)
		return successResponse(req.ID, map[string]any{"thingError": terr})

	case "RemoveThing":
		var p struct {
			ThingID uuid.UUID `json:"thingId"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		ruleIDs, terr := f.lifecycle.RemoveThing(ctx, p.ThingID)
		return successResponse(req.ID, map[string]any{"thingError": terr, "ruleIds": ruleIDs})

	case "SetThingSettings":
		var p struct {
			ThingID  uuid.UUID         `json:"thingId"`
			Settings catalog.ParamList `json:"settings"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		for _, setting := range p.Settings {
			if terr := f.things.SetSetting(ctx, p.ThingID, setting.ParamTypeID, setting.Value); terr != catalog.NoError {
				return successResponse(req.ID, map[string]any{"thingError": terr})
			}
		}
		return successResponse(req.ID, map[string]any{"thingError": catalog.NoError})

	case "GetEventTypes":
		cls, ok := f.classFromParams(req)
		if !ok {
			return errorResponse(req.ID, catalog.ThingClassNotFound)
		}
		return successResponse(req.ID, map[string]any{"eventTypes": cls.EventTypes})

	case "GetActionTypes":
		cls, ok := f.classFromParams(req)
		if !ok {
			return errorResponse(req.ID, catalog.ThingClassNotFound)
		}
		return successResponse(req.ID, map[string]any{"actionTypes": cls.ActionTypes})

	case "GetStateTypes":
		cls, ok := f.classFromParams(req)
		if !ok {
			return errorResponse(req.ID, catalog.ThingClassNotFound)
		}
		return successResponse(req.ID, map[string]any{"stateTypes": cls.StateTypes})

	case "GetStateValue":
		var p struct {
			ThingID     uuid.UUID `json:"thingId"`
			StateTypeID uuid.UUID `json:"stateTypeId"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		thing, ok := f.things.Find(p.ThingID)
		if !ok {
			return errorResponse(req.ID, catalog.ThingNotFound)
		}
		sv, ok := thing.States[p.StateTypeID]
		if !ok {
			return errorResponse(req.ID, catalog.StateTypeNotFound)
		}
		return successResponse(req.ID, map[string]any{"thingError": catalog.NoError, "value": sv.Value})

	case "GetStateValues":
		var p struct {
			ThingID uuid.UUID `json:"thingId"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		thing, ok := f.things.Find(p.ThingID)
		if !ok {
			return errorResponse(req.ID, catalog.ThingNotFound)
		}
		return successResponse(req.ID, map[string]any{"thingError": catalog.NoError, "values": thing.States})

	case "BrowseThing":
		return f.dispatchBrowseThing(ctx, req)

	case "GetBrowserItem":
		return f.dispatchGetBrowserItem(ctx, req)

	case "ExecuteAction":
		return f.dispatchExecuteAction(ctx, req)

	case "ExecuteBrowserItem":
		return f.dispatchExecuteBrowserItem(ctx, req)

	case "ExecuteBrowserItemAction":
		return f.dispatchExecuteBrowserItemAction(ctx, req)

	case "GetIOConnections":
		return successResponse(req.ID, map[string]any{"ioConnections": f.ioconn.Connections()})

	case "ConnectIO":
		var p struct {
			InputThingID      uuid.UUID `json:"inputThingId"`
			InputStateTypeID  uuid.UUID `json:"inputStateTypeId"`
			OutputThingID     uuid.UUID `json:"outputThingId"`
			OutputStateTypeID uuid.UUID `json:"outputStateTypeId"`
			Inverted          bool      `json:"inverted,omitempty"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		conn, terr := f.ioconn.Connect(ctx, p.InputThingID, p.InputStateTypeID, p.OutputThingID, p.OutputStateTypeID, p.Inverted)
		if terr != catalog.NoError {
			return errorResponse(req.ID, terr)
		}
		return successResponse(req.ID, map[string]any{"thingError": catalog.NoError, "ioConnection": conn})

	case "DisconnectIO":
		var p struct {
			IOConnectionID uuid.UUID `json:"ioConnectionId"`
		}
		if !f.decode(req, &p) {
			return errorResponse(req.ID, catalog.InvalidParameter)
		}
		terr := f.ioconn.Disconnect(ctx, p.IOConnectionID)
		return successResponse(req.ID, map[string]any{"thingError": terr})

	default:
		return &ws.Response{ID: req.ID, Status: ws.StatusError, Params: map[string]any{"error": "unknown method " + req.Method}}
	}
}

func (f *Facade) decode(req ws.Request, v any) bool {
	if len(req.Params) == 0 {
		return true
	}
	return json.Unmarshal(req.Params, v) == nil
}

func (f *Facade) classFromParams(req ws.Request) (catalog.ThingClass, bool) {
	var p struct {
		ThingClassID uuid.UUID `json:"thingClassId"`
	}
	if !f.decode(req, &p) {
		return catalog.ThingClass{}, false
	}
	return f.cat.FindThingClass(p.ThingClassID)
}

// optionalID surfaces id only when the operation succeeded, leaving the
// field absent (nil) on error so a client can distinguish "no thing"
// from "thing id zero".
func optionalID(id uuid.UUID, terr catalog.ThingError) *uuid.UUID {
	if terr != catalog.NoError || id == uuid.Nil {
		return nil
	}
	return &id
}

func (f *Facade) dispatchExecuteAction(ctx context.Context, req ws.Request) *ws.Response {
	var p struct {
		ThingID      uuid.UUID         `json:"thingId"`
		ActionTypeID uuid.UUID         `json:"actionTypeId"`
		Params       catalog.ParamList `json:"params,omitempty"`
	}
	if !f.decode(req, &p) {
		return errorResponse(req.ID, catalog.InvalidParameter)
	}
	thing, ok := f.things.Find(p.ThingID)
	if !ok {
		return errorResponse(req.ID, catalog.ThingNotFound)
	}
	cls, ok := f.cat.FindThingClass(thing.ThingClassID)
	if !ok {
		return errorResponse(req.ID, catalog.ThingClassNotFound)
	}
	actionType, ok := cls.FindActionType(p.ActionTypeID)
	if !ok {
		return errorResponse(req.ID, catalog.ActionTypeNotFound)
	}
	params, terr := catalog.ValidateParams(actionType.ParamTypes, p.Params)
	if terr != catalog.NoError {
		return errorResponse(req.ID, terr)
	}
	ti, ok := f.host.ThingIntegration(cls.PluginID)
	if !ok {
		return errorResponse(req.ID, catalog.PluginNotFound)
	}

	actionInfo := f.infoReg.NewActionInfo(thing, p.ActionTypeID, params, 0)
	ti.ExecuteAction(ctx, actionInfo)
	<-actionInfo.Done()

	return successResponse(req.ID, map[string]any{
		"thingError":     actionInfo.Status(),
		"displayMessage": f.translate(cls.PluginID, actionInfo.DisplayMessage(), req.Locale),
	})
}

func (f *Facade) dispatchBrowseThing(ctx context.Context, req ws.Request) *ws.Response {
	var p struct {
		ThingID uuid.UUID `json:"thingId"`
		ItemID  string    `json:"itemId,omitempty"`
	}
	if !f.decode(req, &p) {
		return errorResponse(req.ID, catalog.InvalidParameter)
	}
	thing, ti, terr := f.resolveBrowsable(p.ThingID)
	if terr != catalog.NoError {
		return errorResponse(req.ID, terr)
	}

	result := f.infoReg.NewBrowseResult(thing, p.ItemID, req.Locale, 0)
	ti.BrowseThing(ctx, result)
	<-result.Done()

	return successResponse(req.ID, map[string]any{"thingError": result.Status(), "items": result.Items()})
}

func (f *Facade) dispatchGetBrowserItem(ctx context.Context, req ws.Request) *ws.Response {
	var p struct {
		ThingID uuid.UUID `json:"thingId"`
		ItemID  string    `json:"itemId"`
	}
	if !f.decode(req, &p) {
		return errorResponse(req.ID, catalog.InvalidParameter)
	}
	thing, ti, terr := f.resolveBrowsable(p.ThingID)
	if terr != catalog.NoError {
		return errorResponse(req.ID, terr)
	}

	result := f.infoReg.NewBrowserItemResult(thing, p.ItemID, req.Locale, 0)
	ti.BrowserItem(ctx, result)
	<-result.Done()

	item, found := result.Item()
	if result.Status() != catalog.NoError {
		return errorResponse(req.ID, result.Status())
	}
	if !found {
		return errorResponse(req.ID, catalog.ItemNotFound)
	}
	return successResponse(req.ID, map[string]any{"thingError": catalog.NoError, "item": item})
}

func (f *Facade) dispatchExecuteBrowserItem(ctx context.Context, req ws.Request) *ws.Response {
	var p struct {
		ThingID uuid.UUID `json:"thingId"`
		ItemID  string    `json:"itemId"`
	}
	if !f.decode(req, &p) {
		return errorResponse(req.ID, catalog.InvalidParameter)
	}
	thing, ti, terr := f.resolveBrowsable(p.ThingID)
	if terr != catalog.NoError {
		return errorResponse(req.ID, terr)
	}

	actionInfo := f.infoReg.NewBrowserActionInfo(thing, p.ItemID, 0)
	ti.ExecuteBrowserItem(ctx, actionInfo)
	<-actionInfo.Done()

	return successResponse(req.ID, map[string]any{"thingError": actionInfo.Status()})
}

func (f *Facade) dispatchExecuteBrowserItemAction(ctx context.Context, req ws.Request) *ws.Response {
	var p struct {
		ThingID      uuid.UUID         `json:"thingId"`
		ItemID       string            `json:"itemId"`
		ActionTypeID uuid.UUID         `json:"actionTypeId"`
		Params       catalog.ParamList `json:"params,omitempty"`
	}
	if !f.decode(req, &p) {
		return errorResponse(req.ID, catalog.InvalidParameter)
	}
	thing, ti, terr := f.resolveBrowsable(p.ThingID)
	if terr != catalog.NoError {
		return errorResponse(req.ID, terr)
	}

	actionInfo := f.infoReg.NewBrowserItemActionInfo(thing, p.ItemID, p.ActionTypeID, p.Params, 0)
	ti.ExecuteBrowserItemAction(ctx, actionInfo)
	<-actionInfo.Done()

	return successResponse(req.ID, map[string]any{"thingError": actionInfo.Status()})
}

func (f *Facade) resolveBrowsable(thingID uuid.UUID) (catalog.Thing, integration.ThingIntegration, catalog.ThingError) {
	thing, ok := f.things.Find(thingID)
	if !ok {
		return catalog.Thing{}, nil, catalog.ThingNotFound
	}
	cls, ok := f.cat.FindThingClass(thing.ThingClassID)
	if !ok {
		return catalog.Thing{}, nil, catalog.ThingClassNotFound
	}
	if !cls.Browsable {
		return catalog.Thing{}, nil, catalog.ItemNotExecutable
	}
	ti, ok := f.host.ThingIntegration(cls.PluginID)
	if !ok {
		return catalog.Thing{}, nil, catalog.PluginNotFound
	}
	return thing, ti, catalog.NoError
}
