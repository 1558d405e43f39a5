package info

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/pkg/catalog"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestFinish_SetsStatusAndClosesDone(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewDiscoveryInfo(uuid.New(), nil, time.Minute)

	i.Finish(catalog.NoError, "done")

	select {
	case <-i.Done():
	default:
		t.Fatal("Done() channel did not close after Finish()")
	}
	if !i.IsFinished() {
		t.Error("IsFinished() = false, want true")
	}
	if i.Status() != catalog.NoError {
		t.Errorf("Status() = %v, want NoError", i.Status())
	}
	if i.DisplayMessage() != "done" {
		t.Errorf("DisplayMessage() = %q, want %q", i.DisplayMessage(), "done")
	}
}

func TestFinish_SecondCallIsNoOp(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewDiscoveryInfo(uuid.New(), nil, time.Minute)

	i.Finish(catalog.NoError, "")
	ok := i.Finish(catalog.HardwareFailure, "should be ignored")

	if ok {
		t.Error("Finish() second call reported success, want false")
	}
	if i.Status() != catalog.NoError {
		t.Errorf("Status() after second Finish() = %v, want NoError (first call wins)", i.Status())
	}
}

func TestTimeout_AutoFinishesWithTimeout(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewActionInfo(catalog.Thing{}, uuid.New(), nil, 20*time.Millisecond)

	select {
	case <-i.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Done() did not close after timeout")
	}

	if i.Status() != catalog.Timeout {
		t.Errorf("Status() after timeout = %v, want Timeout", i.Status())
	}
	if !IsAborted(i.Base) {
		t.Error("IsAborted() = false, want true after timeout")
	}
}

func TestTimeout_DoesNotFireIfFinishedFirst(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewActionInfo(catalog.Thing{}, uuid.New(), nil, 20*time.Millisecond)

	i.Finish(catalog.NoError, "")
	time.Sleep(60 * time.Millisecond)

	if IsAborted(i.Base) {
		t.Error("IsAborted() = true, want false: plugin finished before the timeout fired")
	}
	if i.Status() != catalog.NoError {
		t.Errorf("Status() = %v, want NoError", i.Status())
	}
}

func TestAborted_ClosesBeforeTimeoutFinish(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewActionInfo(catalog.Thing{}, uuid.New(), nil, 20*time.Millisecond)

	select {
	case <-i.Aborted():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Aborted() did not close on timeout")
	}
	<-i.Done()
	if i.Status() != catalog.Timeout {
		t.Errorf("Status() = %v, want Timeout", i.Status())
	}
}

func TestRegistry_RemovesEntryAfterFinish(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewDiscoveryInfo(uuid.New(), nil, time.Minute)

	if r.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", r.Pending())
	}

	i.Finish(catalog.NoError, "")

	deadline := time.After(time.Second)
	for r.Pending() != 0 {
		select {
		case <-deadline:
			t.Fatal("Pending() did not reach 0 after Finish()")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDiscoveryInfo_AddThingDescriptors(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewDiscoveryInfo(uuid.New(), nil, time.Minute)

	d1 := catalog.ThingDescriptor{ID: uuid.New(), Title: "one"}
	d2 := catalog.ThingDescriptor{ID: uuid.New(), Title: "two"}
	i.AddThingDescriptor(d1)
	i.AddThingDescriptors([]catalog.ThingDescriptor{d2})

	got := i.ThingDescriptors()
	if len(got) != 2 || got[0].Title != "one" || got[1].Title != "two" {
		t.Errorf("ThingDescriptors() = %+v, want [one two]", got)
	}
}

func TestPairingInfo_OAuthURL(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewPairingInfo(uuid.New(), uuid.New(), nil, "device", nil, nil, false, time.Minute)

	i.SetOAuthURL("https://example.com/authorize")
	if got := i.OAuthURL(); got != "https://example.com/authorize" {
		t.Errorf("OAuthURL() = %q, want the set URL", got)
	}
}

func TestBrowseResult_AddItem(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewBrowseResult(catalog.Thing{ID: uuid.New()}, "", "en_US", time.Minute)

	i.AddItem(catalog.BrowserItem{ID: "a", DisplayName: "Folder A"})
	items := i.Items()
	if len(items) != 1 || items[0].DisplayName != "Folder A" {
		t.Errorf("Items() = %+v, want [Folder A]", items)
	}
}

func TestBrowserItemResult_SetItem(t *testing.T) {
	r := NewRegistry(testLogger())
	i := r.NewBrowserItemResult(catalog.Thing{ID: uuid.New()}, "x", "en_US", time.Minute)

	if _, ok := i.Item(); ok {
		t.Fatal("Item() before SetItem() should report not-ok")
	}
	i.SetItem(catalog.BrowserItem{ID: "x", DisplayName: "File X"})
	item, ok := i.Item()
	if !ok || item.DisplayName != "File X" {
		t.Errorf("Item() = %+v, ok=%v, want File X", item, ok)
	}
}
