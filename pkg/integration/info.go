package integration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/homehub/homehub/pkg/catalog"
)

// Base is the one-shot async handle embedded by every Info kind
// (spec.md §4.4). It owns the timeout timer and the finished/aborted
// signaling, grounded line-for-line on the nymea original's
// ThingDiscoveryInfo: a plugin may call Finish concurrently with the
// timer firing, so the timeout callback re-checks the finished flag
// before emitting aborted and again before auto-finishing with Timeout.
type Base struct {
	finished  atomic.Bool
	once      sync.Once
	doneCh    chan struct{}
	abortedCh chan struct{}

	timer *time.Timer

	mu             sync.Mutex
	status         catalog.ThingError
	displayMessage string
}

// NewBase constructs a Base with the given timeout (0 = infinite) and
// starts its timer. onTimeout is called if the timer elapses before
// Finish; it must itself call Finish(Timeout, ...) -- Base only handles
// the race-safe signaling, not the specific per-kind timeout policy.
func NewBase(timeout time.Duration, onTimeout func()) *Base {
	b := &Base{
		doneCh:    make(chan struct{}),
		abortedCh: make(chan struct{}),
	}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, func() {
			// Re-check finished *inside* the timeout before emitting
			// aborted, exactly as thingdiscoveryinfo.cpp's lambda does.
			if b.finished.Load() {
				return
			}
			close(b.abortedCh)
			// Re-check again before the auto-finish: the plugin may have
			// called Finish in the window between the two checks.
			if b.finished.Load() {
				return
			}
			if onTimeout != nil {
				onTimeout()
			}
		})
	}
	return b
}

// Finish is terminal: it sets the status/displayMessage and closes Done()
// exactly once. A second call is a no-op (the caller should log a
// warning; Base itself stays silent since it has no logger).
func (b *Base) Finish(status catalog.ThingError, displayMessage string) bool {
	if !b.finished.CompareAndSwap(false, true) {
		return false
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Lock()
	b.status = status
	b.displayMessage = displayMessage
	b.mu.Unlock()
	b.once.Do(func() { close(b.doneCh) })
	return true
}

// IsFinished reports whether Finish has already been called.
func (b *Base) IsFinished() bool { return b.finished.Load() }

// Done returns the channel closed when Finish is called.
func (b *Base) Done() <-chan struct{} { return b.doneCh }

// Aborted returns the channel closed if the timeout elapsed before Finish.
func (b *Base) Aborted() <-chan struct{} { return b.abortedCh }

// Status returns the terminal status once Done() has fired; the zero
// value before that.
func (b *Base) Status() catalog.ThingError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// DisplayMessage returns the terminal display message, untranslated.
func (b *Base) DisplayMessage() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.displayMessage
}

// DefaultTimeout is used by any Info kind whose caller does not specify one.
const DefaultTimeout = 30 * time.Second

// DiscoveryInfo is the handle for Plugin.DiscoverThings.
type DiscoveryInfo struct {
	*Base
	ThingClassID uuid.UUID
	Params       catalog.ParamList

	mu          sync.Mutex
	descriptors []catalog.ThingDescriptor
}

// AddThingDescriptor appends one discovered candidate.
func (i *DiscoveryInfo) AddThingDescriptor(d catalog.ThingDescriptor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.descriptors = append(i.descriptors, d)
}

// AddThingDescriptors appends multiple discovered candidates.
func (i *DiscoveryInfo) AddThingDescriptors(ds []catalog.ThingDescriptor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.descriptors = append(i.descriptors, ds...)
}

// ThingDescriptors returns the descriptors collected so far.
func (i *DiscoveryInfo) ThingDescriptors() []catalog.ThingDescriptor {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]catalog.ThingDescriptor, len(i.descriptors))
	copy(out, i.descriptors)
	return out
}

// PairingInfo is the handle for Plugin.StartPairing / ConfirmPairing.
type PairingInfo struct {
	*Base
	TransactionID uuid.UUID
	ThingClassID  uuid.UUID
	ThingID       *uuid.UUID
	Name          string
	Params        catalog.ParamList
	ParentID      *uuid.UUID
	Reconfigure   bool

	mu       sync.Mutex
	oAuthURL string
}

// SetOAuthURL records the browser target for OAuth setup methods.
func (i *PairingInfo) SetOAuthURL(url string) {
	i.mu.Lock()
	i.oAuthURL = url
	i.mu.Unlock()
}

// OAuthURL returns the URL set via SetOAuthURL, if any.
func (i *PairingInfo) OAuthURL() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.oAuthURL
}

// SetupInfo is the handle for Plugin.SetupThing.
type SetupInfo struct {
	*Base
	Thing       catalog.Thing
	Initial     bool
	Reconfigure bool
}

// ActionInfo is the handle for Plugin.ExecuteAction.
type ActionInfo struct {
	*Base
	Thing       catalog.Thing
	ActionTypeID uuid.UUID
	Params      catalog.ParamList
}

// BrowseResult is the handle for Plugin.BrowseThing.
type BrowseResult struct {
	*Base
	Thing  catalog.Thing
	ItemID string
	Locale string

	mu    sync.Mutex
	items []catalog.BrowserItem
}

// AddItem appends one browser item to the result.
func (r *BrowseResult) AddItem(item catalog.BrowserItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

// Items returns the browser items collected so far.
func (r *BrowseResult) Items() []catalog.BrowserItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.BrowserItem, len(r.items))
	copy(out, r.items)
	return out
}

// BrowserItemResult is the handle for Plugin.BrowserItem.
type BrowserItemResult struct {
	*Base
	Thing  catalog.Thing
	ItemID string
	Locale string

	mu   sync.Mutex
	item *catalog.BrowserItem
}

// SetItem records the resolved browser item.
func (r *BrowserItemResult) SetItem(item catalog.BrowserItem) {
	r.mu.Lock()
	r.item = &item
	r.mu.Unlock()
}

// Item returns the resolved browser item, if SetItem was called.
func (r *BrowserItemResult) Item() (catalog.BrowserItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.item == nil {
		return catalog.BrowserItem{}, false
	}
	return *r.item, true
}

// BrowserActionInfo is the handle for Plugin.ExecuteBrowserItem.
type BrowserActionInfo struct {
	*Base
	Thing  catalog.Thing
	ItemID string
}

// BrowserItemActionInfo is the handle for Plugin.ExecuteBrowserItemAction.
type BrowserItemActionInfo struct {
	*Base
	Thing        catalog.Thing
	ItemID       string
	ActionTypeID uuid.UUID
	Params       catalog.ParamList
}
