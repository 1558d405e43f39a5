// Package things implements the Thing Store (spec component C2): the
// set of configured Things, their persistence, and the change
// notifications broadcast whenever one is added, changed, or removed.
// Grounded on internal/store.SQLiteStore for persistence and
// internal/event.Bus for notification, mirroring the migration-table
// and RWMutex-guarded-map shape internal/registry.Registry uses for
// its own in-memory bookkeeping.
package things

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// RemovePolicyResolver is the external rule-engine collaborator
// consulted during Remove to decide how rules referencing the removed
// Thing should be handled (spec.md §4.2/§4.5).
type RemovePolicyResolver interface {
	ResolveRemovePolicy(ctx context.Context, thingID uuid.UUID) (catalog.RemovePolicy, []uuid.UUID)
}

// Store owns the set of configured Things.
type Store struct {
	mu       sync.RWMutex
	things   map[uuid.UUID]catalog.Thing
	children map[uuid.UUID][]uuid.UUID // parentId -> child ids
	quarantined map[uuid.UUID]struct{}

	catalog *catalog.Catalog
	db      integration.Store
	bus     integration.EventBus
	logger  *zap.Logger
}

// New creates a Thing Store backed by db, validating against cat and
// publishing notifications on bus.
func New(db integration.Store, cat *catalog.Catalog, bus integration.EventBus, logger *zap.Logger) *Store {
	return &Store{
		things:      make(map[uuid.UUID]catalog.Thing),
		children:    make(map[uuid.UUID][]uuid.UUID),
		quarantined: make(map[uuid.UUID]struct{}),
		catalog:     cat,
		db:          db,
		bus:         bus,
		logger:      logger,
	}
}

var migrations = []integration.Migration{
	{
		Version:     1,
		Description: "create things tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS things (
					id             TEXT PRIMARY KEY,
					thing_class_id TEXT NOT NULL,
					name           TEXT NOT NULL,
					parent_id      TEXT,
					auto_created   INTEGER NOT NULL DEFAULT 0
				);
				CREATE TABLE IF NOT EXISTS thing_params (
					thing_id      TEXT NOT NULL,
					param_type_id TEXT NOT NULL,
					value_json    TEXT NOT NULL,
					PRIMARY KEY (thing_id, param_type_id)
				);
				CREATE TABLE IF NOT EXISTS thing_settings (
					thing_id      TEXT NOT NULL,
					param_type_id TEXT NOT NULL,
					value_json    TEXT NOT NULL,
					PRIMARY KEY (thing_id, param_type_id)
				);
				CREATE TABLE IF NOT EXISTS thing_state_values (
					thing_id        TEXT NOT NULL,
					state_type_id   TEXT NOT NULL,
					value_json      TEXT NOT NULL,
					min_json        TEXT,
					max_json        TEXT,
					allowed_json    TEXT,
					PRIMARY KEY (thing_id, state_type_id)
				);
			`)
			return err
		},
	},
}

// Migrate applies the Thing Store's schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, "things", migrations)
}

// Load revives every persisted Thing with SetupStatus = None (spec.md
// §4.2). A Thing whose class is not registered in the catalog is kept
// in storage but held back from the live map ("quarantined") so a
// later plugin reload can recover it.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT id, thing_class_id, name, parent_id, auto_created FROM things`)
	if err != nil {
		return fmt.Errorf("load things: %w", err)
	}
	defer rows.Close()

	var loaded []catalog.Thing

	for rows.Next() {
		var idStr, classStr, name string
		var parentStr sql.NullString
		var autoCreated int
		if err := rows.Scan(&idStr, &classStr, &name, &parentStr, &autoCreated); err != nil {
			return fmt.Errorf("scan thing row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("parse thing id: %w", err)
		}
		classID, err := uuid.Parse(classStr)
		if err != nil {
			return fmt.Errorf("parse thing class id: %w", err)
		}
		var parentID *uuid.UUID
		if parentStr.Valid && parentStr.String != "" {
			p, err := uuid.Parse(parentStr.String)
			if err != nil {
				return fmt.Errorf("parse parent id: %w", err)
			}
			parentID = &p
		}

		t := catalog.Thing{
			ID:           id,
			ThingClassID: classID,
			Name:         name,
			ParentID:     parentID,
			AutoCreated:  autoCreated != 0,
			SetupStatus:  catalog.SetupNone,
			States:       make(map[uuid.UUID]catalog.StateValue),
		}
		loaded = append(loaded, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range loaded {
		t := &loaded[i]
		if _, ok := s.catalog.FindThingClass(t.ThingClassID); !ok {
			s.mu.Lock()
			s.quarantined[t.ID] = struct{}{}
			s.mu.Unlock()
			s.logger.Warn("thing references unknown class, quarantined",
				zap.String("thing_id", t.ID.String()), zap.String("class_id", t.ThingClassID.String()))
			continue
		}
		if err := s.loadParams(ctx, t); err != nil {
			return err
		}
		if err := s.loadStateValues(ctx, t); err != nil {
			return err
		}

		s.mu.Lock()
		s.things[t.ID] = *t
		if t.ParentID != nil {
			s.children[*t.ParentID] = append(s.children[*t.ParentID], t.ID)
		}
		s.mu.Unlock()
	}

	return nil
}

func (s *Store) loadParams(ctx context.Context, t *catalog.Thing) error {
	params, err := loadParamList(ctx, s.db.DB(), "thing_params", t.ID)
	if err != nil {
		return err
	}
	t.Params = params
	settings, err := loadParamList(ctx, s.db.DB(), "thing_settings", t.ID)
	if err != nil {
		return err
	}
	t.Settings = settings
	return nil
}

func loadParamList(ctx context.Context, db *sql.DB, table string, thingID uuid.UUID) (catalog.ParamList, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT param_type_id, value_json FROM %s WHERE thing_id = ?`, table), thingID.String())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	var out catalog.ParamList
	for rows.Next() {
		var idStr, valueJSON string
		if err := rows.Scan(&idStr, &valueJSON); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(valueJSON), &v); err != nil {
			return nil, err
		}
		out = append(out, catalog.Param{ParamTypeID: id, Value: v})
	}
	return out, rows.Err()
}

func (s *Store) loadStateValues(ctx context.Context, t *catalog.Thing) error {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT state_type_id, value_json, min_json, max_json, allowed_json FROM thing_state_values WHERE thing_id = ?`,
		t.ID.String())
	if err != nil {
		return fmt.Errorf("load state values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idStr, valueJSON string
		var minJSON, maxJSON, allowedJSON sql.NullString
		if err := rows.Scan(&idStr, &valueJSON, &minJSON, &maxJSON, &allowedJSON); err != nil {
			return err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return err
		}
		var sv catalog.StateValue
		if err := json.Unmarshal([]byte(valueJSON), &sv.Value); err != nil {
			return err
		}
		if minJSON.Valid && minJSON.String != "" {
			_ = json.Unmarshal([]byte(minJSON.String), &sv.MinValue)
		}
		if maxJSON.Valid && maxJSON.String != "" {
			_ = json.Unmarshal([]byte(maxJSON.String), &sv.MaxValue)
		}
		if allowedJSON.Valid && allowedJSON.String != "" {
			_ = json.Unmarshal([]byte(allowedJSON.String), &sv.AllowedValues)
		}
		t.States[id] = sv
	}
	return rows.Err()
}

// Add inserts a new, fully-validated Thing and persists it.
func (s *Store) Add(ctx context.Context, t catalog.Thing) catalog.ThingError {
	cls, ok := s.catalog.FindThingClass(t.ThingClassID)
	if !ok {
		return catalog.ThingClassNotFound
	}
	if t.ParentID != nil {
		s.mu.RLock()
		parent, exists := s.things[*t.ParentID]
		s.mu.RUnlock()
		if !exists {
			return catalog.ThingNotFound
		}
		if parentCls, ok := s.catalog.FindThingClass(parent.ThingClassID); !ok || !parentCls.ChildCreatable {
			return catalog.InvalidParameter
		}
	}

	if t.States == nil {
		t.States = make(map[uuid.UUID]catalog.StateValue)
	}
	for _, st := range cls.StateTypes {
		if _, ok := t.States[st.ID]; !ok {
			t.States[st.ID] = catalog.StateValue{Value: st.DefaultValue, MinValue: st.MinValue, MaxValue: st.MaxValue, AllowedValues: st.AllowedValues}
		}
	}

	if err := s.persistThing(ctx, t); err != nil {
		s.logger.Error("persist thing failed, aborting add", zap.Error(err))
		return catalog.HardwareFailure
	}

	s.mu.Lock()
	s.things[t.ID] = t
	if t.ParentID != nil {
		s.children[*t.ParentID] = append(s.children[*t.ParentID], t.ID)
	}
	s.mu.Unlock()

	s.publish(ctx, event.TopicThingAdded, event.ThingAddedPayload{ThingID: t.ID.String()})
	return catalog.NoError
}

// Remove deletes a Thing and cascades to its children, consulting the
// RemovePolicyResolver collaborator for any rule referencing it.
func (s *Store) Remove(ctx context.Context, thingID uuid.UUID, resolver RemovePolicyResolver) ([]uuid.UUID, catalog.ThingError) {
	s.mu.RLock()
	_, exists := s.things[thingID]
	childIDs := append([]uuid.UUID(nil), s.children[thingID]...)
	s.mu.RUnlock()
	if !exists {
		return nil, catalog.ThingNotFound
	}

	var affectedRules []uuid.UUID
	if resolver != nil {
		policy, rules := resolver.ResolveRemovePolicy(ctx, thingID)
		affectedRules = rules
		_ = policy // Cascade vs UpdateRule is the rule-engine's own concern; only the id list is surfaced here.
	}

	for _, childID := range childIDs {
		if _, err := s.Remove(ctx, childID, resolver); err != catalog.NoError {
			return nil, err
		}
	}

	if err := s.deletePersisted(ctx, thingID); err != nil {
		s.logger.Error("persist removal failed, aborting remove", zap.Error(err))
		return nil, catalog.HardwareFailure
	}

	s.mu.Lock()
	t := s.things[thingID]
	delete(s.things, thingID)
	if t.ParentID != nil {
		siblings := s.children[*t.ParentID]
		for i, id := range siblings {
			if id == thingID {
				s.children[*t.ParentID] = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	delete(s.children, thingID)
	s.mu.Unlock()

	s.publish(ctx, event.TopicThingRemoved, event.ThingRemovedPayload{ThingID: thingID.String()})
	return affectedRules, catalog.NoError
}

// SetParam updates one Param post-setup (used by reconfigure; params are
// otherwise immutable, spec.md §3).
func (s *Store) SetParam(ctx context.Context, thingID, paramTypeID uuid.UUID, value any) catalog.ThingError {
	return s.mutate(ctx, thingID, func(cls catalog.ThingClass, t *catalog.Thing) catalog.ThingError {
		pt, ok := cls.FindParamType(paramTypeID)
		if !ok {
			return catalog.InvalidParameter
		}
		normalized, terr := catalog.ValidateParams([]catalog.ParamType{pt}, catalog.ParamList{{ParamTypeID: paramTypeID, Value: value}})
		if terr != catalog.NoError {
			return terr
		}
		t.Params = setParam(t.Params, normalized[0])
		return catalog.NoError
	}, func(t catalog.Thing) {
		s.publish(ctx, event.TopicThingChanged, event.ThingAddedPayload{ThingID: t.ID.String()})
	})
}

// SetParams replaces a Thing's entire param set in one mutation,
// validated against the Thing class — used by ReconfigureThing
// (spec.md §4.5), where the whole candidate set changes together rather
// than field by field.
func (s *Store) SetParams(ctx context.Context, thingID uuid.UUID, params catalog.ParamList) catalog.ThingError {
	return s.mutate(ctx, thingID, func(cls catalog.ThingClass, t *catalog.Thing) catalog.ThingError {
		normalized, terr := catalog.ValidateParams(cls.ParamTypes, params)
		if terr != catalog.NoError {
			return terr
		}
		t.Params = normalized
		return catalog.NoError
	}, func(t catalog.Thing) {
		s.publish(ctx, event.TopicThingChanged, event.ThingAddedPayload{ThingID: t.ID.String()})
	})
}

// Rename changes a Thing's human-readable name only; never re-runs setup
// (spec.md §4.5 EditThing).
func (s *Store) Rename(ctx context.Context, thingID uuid.UUID, name string) catalog.ThingError {
	return s.mutate(ctx, thingID, func(cls catalog.ThingClass, t *catalog.Thing) catalog.ThingError {
		t.Name = name
		return catalog.NoError
	}, func(t catalog.Thing) {
		s.publish(ctx, event.TopicThingChanged, event.ThingAddedPayload{ThingID: t.ID.String()})
	})
}

// SetSetting updates a mutable per-Thing setting.
func (s *Store) SetSetting(ctx context.Context, thingID, paramTypeID uuid.UUID, value any) catalog.ThingError {
	return s.mutate(ctx, thingID, func(cls catalog.ThingClass, t *catalog.Thing) catalog.ThingError {
		var pt catalog.ParamType
		found := false
		for _, candidate := range cls.SettingsTypes {
			if candidate.ID == paramTypeID {
				pt, found = candidate, true
				break
			}
		}
		if !found {
			return catalog.InvalidParameter
		}
		normalized, terr := catalog.ValidateParams([]catalog.ParamType{pt}, catalog.ParamList{{ParamTypeID: paramTypeID, Value: value}})
		if terr != catalog.NoError {
			return terr
		}
		t.Settings = setParam(t.Settings, normalized[0])
		return catalog.NoError
	}, func(t catalog.Thing) {
		s.publish(ctx, event.TopicThingSettingChanged, event.ThingSettingChangedPayload{ThingID: t.ID.String(), ParamTypeID: paramTypeID.String(), Value: value})
	})
}

// SetStateValue records a new state value reported by a plugin, coerced
// to the state's value type and checked against the Thing's current
// bounds for that state.
func (s *Store) SetStateValue(ctx context.Context, thingID, stateTypeID uuid.UUID, value any) catalog.ThingError {
	return s.mutate(ctx, thingID, func(cls catalog.ThingClass, t *catalog.Thing) catalog.ThingError {
		st, ok := cls.FindStateType(stateTypeID)
		if !ok {
			return catalog.InvalidParameter
		}
		sv := t.States[stateTypeID]
		pt := catalog.ParamType{ID: st.ID, ValueType: st.ValueType, MinValue: sv.MinValue, MaxValue: sv.MaxValue, AllowedValues: sv.AllowedValues}
		normalized, terr := catalog.ValidateParams([]catalog.ParamType{pt}, catalog.ParamList{{ParamTypeID: st.ID, Value: value}})
		if terr != catalog.NoError {
			return terr
		}
		sv.Value = normalized[0].Value
		t.States[stateTypeID] = sv
		return catalog.NoError
	}, func(t catalog.Thing) {
		sv := t.States[stateTypeID]
		s.publish(ctx, event.TopicStateChanged, event.StateChangedPayload{
			ThingID: t.ID.String(), StateTypeID: stateTypeID.String(), Value: sv.Value,
			MinValue: sv.MinValue, MaxValue: sv.MaxValue, AllowedValues: sv.AllowedValues,
		})
	})
}

// SetStateBounds updates the min/max/allowed-values override a plugin
// reports for one state (spec.md §4.2's setStateMin/Max/AllowedValues).
func (s *Store) SetStateBounds(ctx context.Context, thingID, stateTypeID uuid.UUID, min, max any, allowed []any) catalog.ThingError {
	return s.mutate(ctx, thingID, func(cls catalog.ThingClass, t *catalog.Thing) catalog.ThingError {
		if _, ok := cls.FindStateType(stateTypeID); !ok {
			return catalog.InvalidParameter
		}
		sv := t.States[stateTypeID]
		sv.MinValue, sv.MaxValue, sv.AllowedValues = min, max, allowed
		t.States[stateTypeID] = sv
		return catalog.NoError
	}, func(t catalog.Thing) {
		sv := t.States[stateTypeID]
		s.publish(ctx, event.TopicStateChanged, event.StateChangedPayload{
			ThingID: t.ID.String(), StateTypeID: stateTypeID.String(), Value: sv.Value,
			MinValue: sv.MinValue, MaxValue: sv.MaxValue, AllowedValues: sv.AllowedValues,
		})
	})
}

// mutate applies fn to a copy of the Thing under lock, persists it on
// success, swaps it into the live map, and fires notify after the lock
// is released.
func (s *Store) mutate(ctx context.Context, thingID uuid.UUID, fn func(catalog.ThingClass, *catalog.Thing) catalog.ThingError, notify func(catalog.Thing)) catalog.ThingError {
	s.mu.RLock()
	t, exists := s.things[thingID]
	s.mu.RUnlock()
	if !exists {
		return catalog.ThingNotFound
	}
	cls, ok := s.catalog.FindThingClass(t.ThingClassID)
	if !ok {
		return catalog.ThingClassNotFound
	}

	working := t.Clone()
	if terr := fn(cls, &working); terr != catalog.NoError {
		return terr
	}

	if err := s.persistThing(ctx, working); err != nil {
		s.logger.Error("persist thing mutation failed", zap.Error(err))
		return catalog.HardwareFailure
	}

	s.mu.Lock()
	s.things[thingID] = working
	s.mu.Unlock()

	if notify != nil {
		notify(working)
	}
	return catalog.NoError
}

// Find returns a copy of the Thing with id, if present and not quarantined.
func (s *Store) Find(id uuid.UUID) (catalog.Thing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.things[id]
	return t, ok
}

// FindByClass returns all Things of the given class.
func (s *Store) FindByClass(classID uuid.UUID) []catalog.Thing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Thing
	for _, t := range s.things {
		if t.ThingClassID == classID {
			out = append(out, t)
		}
	}
	return out
}

// FindChildren returns all Things whose ParentID is parentID.
func (s *Store) FindChildren(parentID uuid.UUID) []catalog.Thing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.children[parentID]
	out := make([]catalog.Thing, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.things[id])
	}
	return out
}

// All returns every live (non-quarantined) Thing.
func (s *Store) All() []catalog.Thing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Thing, 0, len(s.things))
	for _, t := range s.things {
		out = append(out, t)
	}
	return out
}

func setParam(list catalog.ParamList, p catalog.Param) catalog.ParamList {
	for i, existing := range list {
		if existing.ParamTypeID == p.ParamTypeID {
			list[i] = p
			return list
		}
	}
	return append(list, p)
}

func (s *Store) publish(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, integration.Event{Topic: topic, Source: "things", Payload: payload})
}

func (s *Store) persistThing(ctx context.Context, t catalog.Thing) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		var parentID any
		if t.ParentID != nil {
			parentID = t.ParentID.String()
		}
		autoCreated := 0
		if t.AutoCreated {
			autoCreated = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO things (id, thing_class_id, name, parent_id, auto_created)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id
		`, t.ID.String(), t.ThingClassID.String(), t.Name, parentID, autoCreated); err != nil {
			return err
		}

		if err := upsertParamList(ctx, tx, "thing_params", t.ID, t.Params); err != nil {
			return err
		}
		if err := upsertParamList(ctx, tx, "thing_settings", t.ID, t.Settings); err != nil {
			return err
		}

		for stateTypeID, sv := range t.States {
			valueJSON, err := json.Marshal(sv.Value)
			if err != nil {
				return err
			}
			minJSON, _ := json.Marshal(sv.MinValue)
			maxJSON, _ := json.Marshal(sv.MaxValue)
			allowedJSON, _ := json.Marshal(sv.AllowedValues)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO thing_state_values (thing_id, state_type_id, value_json, min_json, max_json, allowed_json)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(thing_id, state_type_id) DO UPDATE SET
					value_json = excluded.value_json, min_json = excluded.min_json,
					max_json = excluded.max_json, allowed_json = excluded.allowed_json
			`, t.ID.String(), stateTypeID.String(), string(valueJSON), string(minJSON), string(maxJSON), string(allowedJSON)); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertParamList(ctx context.Context, tx *sql.Tx, table string, thingID uuid.UUID, list catalog.ParamList) error {
	for _, p := range list {
		valueJSON, err := json.Marshal(p.Value)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (thing_id, param_type_id, value_json) VALUES (?, ?, ?)
			ON CONFLICT(thing_id, param_type_id) DO UPDATE SET value_json = excluded.value_json
		`, table), thingID.String(), p.ParamTypeID.String(), string(valueJSON)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deletePersisted(ctx context.Context, thingID uuid.UUID) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"thing_state_values", "thing_settings", "thing_params"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE thing_id = ?`, table), thingID.String()); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM things WHERE id = ?`, thingID.String()); err != nil {
			return err
		}
		return nil
	})
}
