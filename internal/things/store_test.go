package things

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/internal/store"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func tempStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "things.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// basicThingClass registers one vendor and one thing class with a
// single writable bool param and a single writable bool state, and
// returns their ids.
func basicThingClass(t *testing.T, cat *catalog.Catalog, childCreatable bool) (vendorID, classID, paramTypeID, stateTypeID uuid.UUID) {
	t.Helper()
	vendorID = uuid.New()
	classID = uuid.New()
	paramTypeID = uuid.New()
	stateTypeID = uuid.New()

	cat.RegisterPlugin(uuid.New(), catalog.PluginCatalog{
		Vendors: []catalog.Vendor{{ID: vendorID, Name: "acme", DisplayName: "Acme"}},
		ThingClasses: []catalog.ThingClass{{
			ID:             classID,
			VendorID:       vendorID,
			Name:           "switch",
			DisplayName:    "Switch",
			CreateMethods:  []catalog.CreateMethod{catalog.CreateJustAdd},
			SetupMethod:    catalog.SetupJustAdd,
			ChildCreatable: childCreatable,
			ParamTypes: []catalog.ParamType{
				{ID: paramTypeID, Name: "address", ValueType: catalog.ValueString, DefaultValue: ""},
			},
			SettingsTypes: []catalog.ParamType{
				{ID: uuid.New(), Name: "pollInterval", ValueType: catalog.ValueInt, DefaultValue: 30},
			},
			StateTypes: []catalog.StateType{
				{ID: stateTypeID, Name: "power", ValueType: catalog.ValueBool, DefaultValue: false, Writable: true},
			},
		}},
	})
	return
}

func newTestStoreWithClass(t *testing.T, childCreatable bool) (*Store, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	cat := catalog.New(testLogger())
	_, classID, paramTypeID, stateTypeID := basicThingClass(t, cat, childCreatable)

	db := tempStore(t)
	s := New(db, cat, nil, testLogger())
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s, classID, paramTypeID, stateTypeID
}

func TestAdd_AssignsDefaultStateValues(t *testing.T) {
	s, classID, paramTypeID, stateTypeID := newTestStoreWithClass(t, false)
	ctx := context.Background()

	thingID := uuid.New()
	thing := catalog.Thing{
		ID:           thingID,
		ThingClassID: classID,
		Name:         "Kitchen switch",
		Params:       catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.5"}},
	}

	if err := s.Add(ctx, thing); err != catalog.NoError {
		t.Fatalf("Add() = %v, want NoError", err)
	}

	got, ok := s.Find(thingID)
	if !ok {
		t.Fatal("Find() after Add() = not found")
	}
	sv, ok := got.States[stateTypeID]
	if !ok {
		t.Fatal("default state value was not assigned")
	}
	if sv.Value != false {
		t.Errorf("default state Value = %v, want false", sv.Value)
	}
}

func TestAdd_UnknownThingClass(t *testing.T) {
	s, _, _, _ := newTestStoreWithClass(t, false)
	ctx := context.Background()

	err := s.Add(ctx, catalog.Thing{ID: uuid.New(), ThingClassID: uuid.New(), Name: "ghost"})
	if err != catalog.ThingClassNotFound {
		t.Errorf("Add() with unknown class = %v, want ThingClassNotFound", err)
	}
}

func TestAdd_ChildRejectedWhenParentNotChildCreatable(t *testing.T) {
	s, classID, paramTypeID, _ := newTestStoreWithClass(t, false)
	ctx := context.Background()

	parentID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: parentID, ThingClassID: classID, Name: "parent",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add(parent) = %v, want NoError", err)
	}

	err := s.Add(ctx, catalog.Thing{
		ID: uuid.New(), ThingClassID: classID, ParentID: &parentID, Name: "child",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.2"}},
	})
	if err != catalog.InvalidParameter {
		t.Errorf("Add(child) under non-child-creatable parent = %v, want InvalidParameter", err)
	}
}

func TestAdd_ChildAllowedUnderChildCreatableParent(t *testing.T) {
	s, classID, paramTypeID, _ := newTestStoreWithClass(t, true)
	ctx := context.Background()

	parentID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: parentID, ThingClassID: classID, Name: "hub",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add(parent) = %v, want NoError", err)
	}

	childID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: childID, ThingClassID: classID, ParentID: &parentID, Name: "outlet",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.2"}},
	}); err != catalog.NoError {
		t.Fatalf("Add(child) = %v, want NoError", err)
	}

	children := s.FindChildren(parentID)
	if len(children) != 1 || children[0].ID != childID {
		t.Errorf("FindChildren(parent) = %+v, want [child]", children)
	}
}

func TestRemove_CascadesToChildren(t *testing.T) {
	s, classID, paramTypeID, _ := newTestStoreWithClass(t, true)
	ctx := context.Background()

	parentID, childID := uuid.New(), uuid.New()
	mustAdd := func(id uuid.UUID, parent *uuid.UUID) {
		t.Helper()
		if err := s.Add(ctx, catalog.Thing{
			ID: id, ThingClassID: classID, ParentID: parent, Name: "t",
			Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
		}); err != catalog.NoError {
			t.Fatalf("Add(%s) = %v", id, err)
		}
	}
	mustAdd(parentID, nil)
	mustAdd(childID, &parentID)

	if _, err := s.Remove(ctx, parentID, nil); err != catalog.NoError {
		t.Fatalf("Remove(parent) = %v, want NoError", err)
	}

	if _, ok := s.Find(parentID); ok {
		t.Error("parent still present after Remove()")
	}
	if _, ok := s.Find(childID); ok {
		t.Error("child still present after cascading Remove()")
	}
}

func TestRemove_NotFound(t *testing.T) {
	s, _, _, _ := newTestStoreWithClass(t, false)
	if _, err := s.Remove(context.Background(), uuid.New(), nil); err != catalog.ThingNotFound {
		t.Errorf("Remove(unknown) = %v, want ThingNotFound", err)
	}
}

func TestSetStateValue_UpdatesAndPersists(t *testing.T) {
	s, classID, paramTypeID, stateTypeID := newTestStoreWithClass(t, false)
	ctx := context.Background()

	thingID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: thingID, ThingClassID: classID, Name: "switch",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add() = %v", err)
	}

	if err := s.SetStateValue(ctx, thingID, stateTypeID, true); err != catalog.NoError {
		t.Fatalf("SetStateValue() = %v, want NoError", err)
	}

	got, _ := s.Find(thingID)
	if got.States[stateTypeID].Value != true {
		t.Errorf("State value after SetStateValue() = %v, want true", got.States[stateTypeID].Value)
	}
}

func TestSetStateValue_UnknownStateType(t *testing.T) {
	s, classID, paramTypeID, _ := newTestStoreWithClass(t, false)
	ctx := context.Background()

	thingID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: thingID, ThingClassID: classID, Name: "switch",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add() = %v", err)
	}

	if err := s.SetStateValue(ctx, thingID, uuid.New(), true); err != catalog.InvalidParameter {
		t.Errorf("SetStateValue() with unknown state type = %v, want InvalidParameter", err)
	}
}

func TestLoad_RevivesThingsWithSetupNone(t *testing.T) {
	cat := catalog.New(testLogger())
	_, classID, paramTypeID, stateTypeID := basicThingClass(t, cat, false)

	db := tempStore(t)
	ctx := context.Background()

	s1 := New(db, cat, nil, testLogger())
	if err := s1.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	thingID := uuid.New()
	if err := s1.Add(ctx, catalog.Thing{
		ID: thingID, ThingClassID: classID, Name: "switch",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add() = %v", err)
	}
	if err := s1.SetStateValue(ctx, thingID, stateTypeID, true); err != catalog.NoError {
		t.Fatalf("SetStateValue() = %v", err)
	}

	s2 := New(db, cat, nil, testLogger())
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	got, ok := s2.Find(thingID)
	if !ok {
		t.Fatal("Load() did not revive the persisted thing")
	}
	if got.SetupStatus != catalog.SetupNone {
		t.Errorf("revived SetupStatus = %v, want SetupNone", got.SetupStatus)
	}
	if got.States[stateTypeID].Value != true {
		t.Errorf("revived state value = %v, want true", got.States[stateTypeID].Value)
	}
}

func TestLoad_QuarantinesUnknownClass(t *testing.T) {
	writerCat := catalog.New(testLogger())
	_, classID, paramTypeID, _ := basicThingClass(t, writerCat, false)

	db := tempStore(t)
	ctx := context.Background()

	s1 := New(db, writerCat, nil, testLogger())
	if err := s1.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	thingID := uuid.New()
	if err := s1.Add(ctx, catalog.Thing{
		ID: thingID, ThingClassID: classID, Name: "switch",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add() = %v", err)
	}

	// Reload against an empty catalog, simulating the owning plugin
	// being unavailable at startup.
	emptyCat := catalog.New(testLogger())
	s2 := New(db, emptyCat, nil, testLogger())
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if _, ok := s2.Find(thingID); ok {
		t.Error("quarantined thing unexpectedly visible via Find()")
	}
	if len(s2.All()) != 0 {
		t.Errorf("All() after quarantine = %d things, want 0", len(s2.All()))
	}
	if _, ok := s2.quarantined[thingID]; !ok {
		t.Error("thing with unknown class was not quarantined")
	}
}

func TestSetSetting_UpdatesValue(t *testing.T) {
	cat := catalog.New(testLogger())
	vendorID := uuid.New()
	classID := uuid.New()
	paramTypeID := uuid.New()
	settingTypeID := uuid.New()
	cat.RegisterPlugin(uuid.New(), catalog.PluginCatalog{
		Vendors: []catalog.Vendor{{ID: vendorID, Name: "acme", DisplayName: "Acme"}},
		ThingClasses: []catalog.ThingClass{{
			ID: classID, VendorID: vendorID, Name: "switch", DisplayName: "Switch",
			CreateMethods: []catalog.CreateMethod{catalog.CreateJustAdd},
			SetupMethod:   catalog.SetupJustAdd,
			ParamTypes:    []catalog.ParamType{{ID: paramTypeID, Name: "address", ValueType: catalog.ValueString}},
			SettingsTypes: []catalog.ParamType{{ID: settingTypeID, Name: "pollInterval", ValueType: catalog.ValueInt, DefaultValue: 30}},
		}},
	})

	db := tempStore(t)
	s := New(db, cat, nil, testLogger())
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	thingID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: thingID, ThingClassID: classID, Name: "switch",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add() = %v", err)
	}

	if err := s.SetSetting(ctx, thingID, settingTypeID, 60); err != catalog.NoError {
		t.Fatalf("SetSetting() = %v, want NoError", err)
	}

	got, _ := s.Find(thingID)
	if got.Settings.Value(settingTypeID) != int64(60) && got.Settings.Value(settingTypeID) != 60 {
		t.Errorf("Settings value = %v, want 60", got.Settings.Value(settingTypeID))
	}
}

func TestPublish_NotifiesEventBus(t *testing.T) {
	s, classID, paramTypeID, _ := newTestStoreWithClass(t, false)
	ctx := context.Background()

	var received []string
	bus := &recordingBus{onPublish: func(topic string) { received = append(received, topic) }}
	s.bus = bus

	thingID := uuid.New()
	if err := s.Add(ctx, catalog.Thing{
		ID: thingID, ThingClassID: classID, Name: "switch",
		Params: catalog.ParamList{{ParamTypeID: paramTypeID, Value: "10.0.0.1"}},
	}); err != catalog.NoError {
		t.Fatalf("Add() = %v", err)
	}

	if _, err := s.Remove(ctx, thingID, nil); err != catalog.NoError {
		t.Fatalf("Remove() = %v", err)
	}

	if len(received) != 2 || received[0] != event.TopicThingAdded || received[1] != event.TopicThingRemoved {
		t.Errorf("published topics = %v, want [%s %s]", received, event.TopicThingAdded, event.TopicThingRemoved)
	}
}

// recordingBus is a minimal integration.EventBus fixture that records
// published topics instead of dispatching to subscribers.
type recordingBus struct {
	onPublish func(topic string)
}

func (b *recordingBus) Publish(ctx context.Context, ev integration.Event) error {
	if b.onPublish != nil {
		b.onPublish(ev.Topic)
	}
	return nil
}

func (b *recordingBus) PublishAsync(ctx context.Context, ev integration.Event) {
	if b.onPublish != nil {
		b.onPublish(ev.Topic)
	}
}

func (b *recordingBus) Subscribe(topic string, handler integration.EventHandler) func() {
	return func() {}
}

func (b *recordingBus) SubscribeAll(handler integration.EventHandler) func() {
	return func() {}
}
