// Package mockintg is a self-contained reference integration, ported
// from the nymea/guh project's own mock plugin (plugins/mock in the
// original source tree). It exists so the thing lifecycle, pairing,
// and IO connection paths can be driven end to end against a real
// ThingIntegration rather than only against hand-rolled test stubs.
// Every id below is a fixed constant, matching the original's practice
// of declaring stable UUIDs per vendor/class/param/state in its plugin
// json rather than generating them at runtime.
package mockintg

import "github.com/google/uuid"

var (
	PluginID = uuid.MustParse("a1a1a1a1-ffff-0000-0000-000000000001")
	VendorID = uuid.MustParse("a1a1a1a1-0000-0000-0000-000000000001")

	// Thing classes.
	ClassJustAddID    = uuid.MustParse("a1a1a1a1-0001-0000-0000-000000000001")
	ClassDiscoveryID  = uuid.MustParse("a1a1a1a1-0002-0000-0000-000000000001")
	ClassDisplayPinID = uuid.MustParse("a1a1a1a1-0003-0000-0000-000000000001")
	ClassParentID     = uuid.MustParse("a1a1a1a1-0004-0000-0000-000000000001")
	ClassChildID      = uuid.MustParse("a1a1a1a1-0005-0000-0000-000000000001")
	ClassIODigitalID  = uuid.MustParse("a1a1a1a1-0006-0000-0000-000000000001")
	ClassIOAnalogID   = uuid.MustParse("a1a1a1a1-0007-0000-0000-000000000001")
	ClassTempSensorID = uuid.MustParse("a1a1a1a1-0008-0000-0000-000000000001")

	// JustAdd params.
	ParamHTTPPortID = uuid.MustParse("a1a1a1a1-0001-0001-0000-000000000001")
	ParamAsyncID    = uuid.MustParse("a1a1a1a1-0001-0002-0000-000000000001")
	ParamBrokenID   = uuid.MustParse("a1a1a1a1-0001-0003-0000-000000000001")

	// Discovery params.
	ParamResultCountID = uuid.MustParse("a1a1a1a1-0002-0001-0000-000000000001")
	ParamIndexID       = uuid.MustParse("a1a1a1a1-0002-0002-0000-000000000001")

	// States (a writable StateType's id doubles as its induced
	// ActionType/EventType id, per pkg/catalog's registration pass).
	StateDigitalID    = uuid.MustParse("a1a1a1a1-0006-0001-0000-000000000001")
	StateAnalogID     = uuid.MustParse("a1a1a1a1-0007-0001-0000-000000000001")
	StateTemperatureID = uuid.MustParse("a1a1a1a1-0008-0001-0000-000000000001")
	StateReachableID  = uuid.MustParse("a1a1a1a1-0001-0004-0000-000000000001")

	// Explicit (non state-induced) action/event on the JustAdd class.
	ActionPingID  = uuid.MustParse("a1a1a1a1-0001-0005-0000-000000000001")
	EventPingedID = uuid.MustParse("a1a1a1a1-0001-0006-0000-000000000001")

	// Browsing fixture on the JustAdd class.
	BrowserActionPressID = uuid.MustParse("a1a1a1a1-0001-0007-0000-000000000001")
)

// DisplayPinSecret is the pairing secret ConfirmPairing accepts for
// ClassDisplayPinID, matching the nymea original's hardcoded mock pin.
const DisplayPinSecret = "243681"

// Browser item ids used by the JustAdd class's fixed browsing tree.
const (
	BrowserItemLeaf   = "leaf"
	BrowserItemFolder = "folder"
	BrowserItemNested = "nested"
)
