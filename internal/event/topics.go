package event

// Topic constants published by the Thing Store (C2), Pairing FSM (C6),
// Plugin Host (C3) and IO Connection Engine (C8), consumed by the
// JSON-RPC façade (C9) and the IO Connection Engine itself.
const (
	TopicThingAdded           = "thing.added"
	TopicThingChanged         = "thing.changed"
	TopicThingRemoved         = "thing.removed"
	TopicThingSettingChanged  = "thing.setting_changed"
	TopicStateChanged         = "thing.state_changed"
	TopicEventTriggered       = "thing.event_triggered"
	TopicIOConnectionAdded    = "ioconnection.added"
	TopicIOConnectionRemoved  = "ioconnection.removed"
	TopicPluginConfigChanged  = "plugin.configuration_changed"
)

// ThingAddedPayload is carried on TopicThingAdded / TopicThingChanged.
type ThingAddedPayload struct {
	ThingID string
}

// ThingRemovedPayload is carried on TopicThingRemoved.
type ThingRemovedPayload struct {
	ThingID string
}

// ThingSettingChangedPayload is carried on TopicThingSettingChanged.
type ThingSettingChangedPayload struct {
	ThingID     string
	ParamTypeID string
	Value       any
}

// StateChangedPayload is carried on TopicStateChanged.
type StateChangedPayload struct {
	ThingID       string
	StateTypeID   string
	Value         any
	MinValue      any
	MaxValue      any
	AllowedValues []any
}

// EventTriggeredPayload is carried on TopicEventTriggered.
type EventTriggeredPayload struct {
	ThingID     string
	EventTypeID string
	Params      map[string]any
}

// IOConnectionPayload is carried on TopicIOConnectionAdded / Removed.
type IOConnectionPayload struct {
	ConnectionID string
}

// PluginConfigChangedPayload is carried on TopicPluginConfigChanged.
type PluginConfigChangedPayload struct {
	PluginID string
}
