package catalog

// ThingError is the single error enumeration shared by the Type Catalog,
// the Lifecycle Engine, Info objects, and the JSON-RPC façade. It is
// returned by value (never wrapped in error) so every boundary -- plugin
// callback, façade request, persistence replay -- speaks the same
// vocabulary, the Go rendering of the nymea original's
// QPair<DeviceError, QString> convention.
type ThingError string

const (
	NoError ThingError = "NoError"

	ThingNotFound      ThingError = "ThingNotFound"
	ThingClassNotFound ThingError = "ThingClassNotFound"
	StateTypeNotFound  ThingError = "StateTypeNotFound"
	ActionTypeNotFound ThingError = "ActionTypeNotFound"
	ItemNotFound       ThingError = "ItemNotFound"
	ItemNotExecutable  ThingError = "ItemNotExecutable"

	MissingParameter    ThingError = "MissingParameter"
	InvalidParameter    ThingError = "InvalidParameter"
	ParameterNotWritable ThingError = "ParameterNotWritable"

	PluginNotFound            ThingError = "PluginNotFound"
	SetupFailed               ThingError = "SetupFailed"
	CreationMethodNotSupported ThingError = "CreationMethodNotSupported"
	SetupMethodNotSupported   ThingError = "SetupMethodNotSupported"
	AuthenticationFailure     ThingError = "AuthenticationFailure"
	HardwareNotAvailable      ThingError = "HardwareNotAvailable"
	HardwareFailure           ThingError = "HardwareFailure"
	DuplicateID               ThingError = "DuplicateId"
	ThingInUse                ThingError = "ThingInUse"
	ThingIsChild              ThingError = "ThingIsChild"
	Timeout                   ThingError = "Timeout"
	Aborted                   ThingError = "Aborted"
)

// Error implements the error interface so ThingError can be returned
// in places that expect one (e.g. wrapped with fmt.Errorf("%w", ...)),
// while call sites within this module compare it directly as a value.
func (e ThingError) Error() string {
	return string(e)
}
