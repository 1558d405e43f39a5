package mockintg

import "github.com/homehub/homehub/pkg/catalog"

// pluginCatalog builds the vendor/thing-class declarations this plugin
// contributes to the Type Catalog at registration time (spec.md §4.1).
func pluginCatalog() catalog.PluginCatalog {
	return catalog.PluginCatalog{
		Vendors: []catalog.Vendor{
			{ID: VendorID, Name: "mock", DisplayName: "Mock Vendor"},
		},
		ThingClasses: []catalog.ThingClass{
			justAddClass(),
			discoveryClass(),
			displayPinClass(),
			parentClass(),
			childClass(),
			ioDigitalClass(),
			ioAnalogClass(),
			tempSensorClass(),
		},
		BrowserItemActionTypes: []catalog.BrowserItemActionType{
			{ID: BrowserActionPressID, Name: "press", DisplayName: "Press"},
		},
	}
}

// justAddClass carries the httpPort/async/broken params the original
// mock device uses to drive setup/action failure injection in tests,
// plus a small browsing tree to exercise BrowseThing/BrowserItem.
func justAddClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:            ClassJustAddID,
		VendorID:      VendorID,
		Name:          "mockJustAdd",
		DisplayName:   "Mock (Just Add)",
		CreateMethods: []catalog.CreateMethod{catalog.CreateJustAdd},
		SetupMethod:   catalog.SetupJustAdd,
		Browsable:     true,
		ParamTypes: []catalog.ParamType{
			{ID: ParamHTTPPortID, Name: "httpPort", DisplayName: "HTTP port", ValueType: catalog.ValueInt, DefaultValue: int64(8080), MinValue: int64(1), MaxValue: int64(65535)},
			{ID: ParamAsyncID, Name: "async", DisplayName: "Set up asynchronously", ValueType: catalog.ValueBool, DefaultValue: false},
			{ID: ParamBrokenID, Name: "broken", DisplayName: "Simulate a broken thing", ValueType: catalog.ValueBool, DefaultValue: false},
		},
		StateTypes: []catalog.StateType{
			{ID: StateReachableID, Name: "reachable", DisplayName: "Reachable", ValueType: catalog.ValueBool, DefaultValue: true, Cached: true},
		},
		ActionTypes: []catalog.ActionType{
			{ID: ActionPingID, Name: "ping", DisplayName: "Ping"},
		},
		EventTypes: []catalog.EventType{
			{ID: EventPingedID, Name: "pinged", DisplayName: "Pinged"},
		},
	}
}

// discoveryClass has no add-by-params path: every instance comes from
// a DiscoverThings reply, sized by the resultCount discovery param.
func discoveryClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:            ClassDiscoveryID,
		VendorID:      VendorID,
		Name:          "mockDiscovery",
		DisplayName:   "Mock (Discovered)",
		CreateMethods: []catalog.CreateMethod{catalog.CreateDiscovery},
		SetupMethod:   catalog.SetupJustAdd,
		DiscoveryParamTypes: []catalog.ParamType{
			{ID: ParamResultCountID, Name: "resultCount", DisplayName: "Result count", ValueType: catalog.ValueInt, DefaultValue: int64(1), MinValue: int64(0), MaxValue: int64(10)},
		},
		ParamTypes: []catalog.ParamType{
			{ID: ParamIndexID, Name: "index", DisplayName: "Discovery index", ValueType: catalog.ValueInt, ReadOnly: true},
		},
	}
}

// displayPinClass only ever comes into being through PairThing /
// ConfirmPairing; ConfirmPairing checks the secret against
// DisplayPinSecret.
func displayPinClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:          ClassDisplayPinID,
		VendorID:    VendorID,
		Name:        "mockDisplayPin",
		DisplayName: "Mock (Display Pin)",
		SetupMethod: catalog.SetupDisplayPin,
	}
}

// parentClass auto-creates one mockChild via PostSetupThing, modeling
// the original's parent/child mock device pair.
func parentClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:             ClassParentID,
		VendorID:       VendorID,
		Name:           "mockParent",
		DisplayName:    "Mock (Parent)",
		CreateMethods:  []catalog.CreateMethod{catalog.CreateJustAdd},
		SetupMethod:    catalog.SetupJustAdd,
		ChildCreatable: true,
	}
}

func childClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:            ClassChildID,
		VendorID:      VendorID,
		Name:          "mockChild",
		DisplayName:   "Mock (Child)",
		CreateMethods: []catalog.CreateMethod{catalog.CreateAuto},
		SetupMethod:   catalog.SetupJustAdd,
	}
}

// ioDigitalClass is a generic boolean IO endpoint: its single writable
// StateType induces the ActionType the IO Connection Engine writes
// through (spec.md §4.8).
func ioDigitalClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:            ClassIODigitalID,
		VendorID:      VendorID,
		Name:          "mockIoDigital",
		DisplayName:   "Mock (Generic Digital IO)",
		CreateMethods: []catalog.CreateMethod{catalog.CreateJustAdd},
		SetupMethod:   catalog.SetupJustAdd,
		StateTypes: []catalog.StateType{
			{ID: StateDigitalID, Name: "digital", DisplayName: "Digital value", ValueType: catalog.ValueBool, DefaultValue: false, Writable: true, Cached: true},
		},
	}
}

// ioAnalogClass ranges 0..3.3, the input side of the spec's example IO
// connection (spec.md §4.8's analog scaling scenario).
func ioAnalogClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:            ClassIOAnalogID,
		VendorID:      VendorID,
		Name:          "mockIoAnalog",
		DisplayName:   "Mock (Generic Analog IO)",
		CreateMethods: []catalog.CreateMethod{catalog.CreateJustAdd},
		SetupMethod:   catalog.SetupJustAdd,
		StateTypes: []catalog.StateType{
			{ID: StateAnalogID, Name: "analog", DisplayName: "Analog value", ValueType: catalog.ValueDouble, DefaultValue: 0.0, MinValue: 0.0, MaxValue: 3.3, Writable: true, Cached: true},
		},
	}
}

// tempSensorClass ranges -20..50, the output side of the same scenario.
func tempSensorClass() catalog.ThingClass {
	return catalog.ThingClass{
		ID:            ClassTempSensorID,
		VendorID:      VendorID,
		Name:          "mockTempSensor",
		DisplayName:   "Mock (Temperature Sensor)",
		CreateMethods: []catalog.CreateMethod{catalog.CreateJustAdd},
		SetupMethod:   catalog.SetupJustAdd,
		StateTypes: []catalog.StateType{
			{ID: StateTemperatureID, Name: "temperature", DisplayName: "Temperature", ValueType: catalog.ValueDouble, DefaultValue: 0.0, MinValue: -20.0, MaxValue: 50.0, Writable: true, Cached: true, Unit: "°C"},
		},
	}
}
