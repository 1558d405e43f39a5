// Package ioconn implements the IO Connection Engine (spec component
// C8): persistent links from one Thing's input state to another's
// output state, with digital/analog propagation and optional
// inversion. Grounded on internal/things.Store's migration-tracked
// persistence shape and internal/event.Bus's topic/payload
// notification pattern; propagation is driven by subscribing to
// event.TopicStateChanged the same way the JSON-RPC façade and rule
// engine do.
package ioconn

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// ThingFinder looks up a configured Thing and its class, the
// collaborators the engine needs to validate and resolve connections.
type ThingFinder interface {
	Find(id uuid.UUID) (catalog.Thing, bool)
}

// ClassFinder resolves a Thing's class to inspect its state types.
type ClassFinder interface {
	FindThingClass(id uuid.UUID) (catalog.ThingClass, bool)
}

// ActionExecutor issues the action an analog/digital propagation
// writes to an output Thing, so the write flows through the plugin's
// executeAction and emits the usual StateChanged (spec.md §4.8).
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, thing catalog.Thing, action catalog.Action) catalog.ThingError
}

// kind classifies a state type for connectability (spec.md §4.8).
type kind int

const (
	kindOpaque kind = iota
	kindDigital
	kindAnalog
)

// Engine owns the set of IO connections, validates and persists them,
// and propagates state changes across them.
type Engine struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]catalog.IOConnection
	byInput     map[string][]uuid.UUID // "thingId:stateTypeId" -> connection ids

	things   ThingFinder
	classes  ClassFinder
	executor ActionExecutor
	db       integration.Store
	bus      integration.EventBus
	logger   *zap.Logger

	maxLoopDepth int
	tick         int64

	unsubscribeState   func()
	unsubscribeRemoved func()
}

// New creates an IO Connection Engine. maxLoopDepth <= 0 falls back to
// 32, matching the server's ioconn.max_loop_depth default.
func New(things ThingFinder, classes ClassFinder, executor ActionExecutor, db integration.Store, bus integration.EventBus, maxLoopDepth int, logger *zap.Logger) *Engine {
	if maxLoopDepth <= 0 {
		maxLoopDepth = 32
	}
	return &Engine{
		connections:  make(map[uuid.UUID]catalog.IOConnection),
		byInput:      make(map[string][]uuid.UUID),
		things:       things,
		classes:      classes,
		executor:     executor,
		db:           db,
		bus:          bus,
		maxLoopDepth: maxLoopDepth,
		logger:       logger,
	}
}

var migrations = []integration.Migration{
	{
		Version:     1,
		Description: "create ioconnections table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS ioconnections (
					id                    TEXT PRIMARY KEY,
					input_thing_id        TEXT NOT NULL,
					input_state_type_id   TEXT NOT NULL,
					output_thing_id       TEXT NOT NULL,
					output_state_type_id  TEXT NOT NULL,
					inverted              INTEGER NOT NULL DEFAULT 0
				);
			`)
			return err
		},
	},
}

// Migrate applies the engine's schema migrations.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.db.Migrate(ctx, "ioconnections", migrations)
}

// Start subscribes the engine to the state-change and thing-removal
// notifications it reacts to. Call Stop to unsubscribe.
func (e *Engine) Start() {
	e.unsubscribeState = e.bus.Subscribe(event.TopicStateChanged, e.onStateChanged)
	e.unsubscribeRemoved = e.bus.Subscribe(event.TopicThingRemoved, e.onThingRemoved)
}

// Stop unsubscribes the engine from the event bus.
func (e *Engine) Stop() {
	if e.unsubscribeState != nil {
		e.unsubscribeState()
	}
	if e.unsubscribeRemoved != nil {
		e.unsubscribeRemoved()
	}
}

// Load revives persisted connections and indexes them for propagation.
func (e *Engine) Load(ctx context.Context) error {
	rows, err := e.db.DB().QueryContext(ctx, `SELECT id, input_thing_id, input_state_type_id, output_thing_id, output_state_type_id, inverted FROM ioconnections`)
	if err != nil {
		return fmt.Errorf("load ioconnections: %w", err)
	}
	defer rows.Close()

	var loaded []catalog.IOConnection
	for rows.Next() {
		var idStr, inThing, inState, outThing, outState string
		var inverted int
		if err := rows.Scan(&idStr, &inThing, &inState, &outThing, &outState, &inverted); err != nil {
			return fmt.Errorf("scan ioconnection: %w", err)
		}
		conn := catalog.IOConnection{
			ID:                uuid.MustParse(idStr),
			InputThingID:      uuid.MustParse(inThing),
			InputStateTypeID:  uuid.MustParse(inState),
			OutputThingID:     uuid.MustParse(outThing),
			OutputStateTypeID: uuid.MustParse(outState),
			Inverted:          inverted != 0,
		}
		loaded = append(loaded, conn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, conn := range loaded {
		e.connections[conn.ID] = conn
		e.indexLocked(conn)
	}
	return nil
}

// Connect validates and persists a new IO connection, then performs
// one immediate propagation using the input's current value (spec.md
// §4.8's lifecycle rule).
func (e *Engine) Connect(ctx context.Context, inputThingID, inputStateTypeID, outputThingID, outputStateTypeID uuid.UUID, inverted bool) (catalog.IOConnection, catalog.ThingError) {
	inputThing, ok := e.things.Find(inputThingID)
	if !ok {
		return catalog.IOConnection{}, catalog.ThingNotFound
	}
	outputThing, ok := e.things.Find(outputThingID)
	if !ok {
		return catalog.IOConnection{}, catalog.ThingNotFound
	}

	inputClass, ok := e.classes.FindThingClass(inputThing.ThingClassID)
	if !ok {
		return catalog.IOConnection{}, catalog.ThingClassNotFound
	}
	outputClass, ok := e.classes.FindThingClass(outputThing.ThingClassID)
	if !ok {
		return catalog.IOConnection{}, catalog.ThingClassNotFound
	}

	inputStateType, ok := inputClass.FindStateType(inputStateTypeID)
	if !ok {
		return catalog.IOConnection{}, catalog.InvalidParameter
	}
	outputStateType, ok := outputClass.FindStateType(outputStateTypeID)
	if !ok || !outputStateType.Writable {
		return catalog.IOConnection{}, catalog.InvalidParameter
	}

	if inputThingID == outputThingID && inputStateTypeID == outputStateTypeID {
		return catalog.IOConnection{}, catalog.InvalidParameter
	}

	inputKind := classify(inputStateType, inputThing.States[inputStateTypeID])
	outputKind := classify(outputStateType, outputThing.States[outputStateTypeID])
	if inputKind == kindOpaque || inputKind != outputKind {
		return catalog.IOConnection{}, catalog.InvalidParameter
	}

	conn := catalog.IOConnection{
		ID:                uuid.New(),
		InputThingID:      inputThingID,
		InputStateTypeID:  inputStateTypeID,
		OutputThingID:     outputThingID,
		OutputStateTypeID: outputStateTypeID,
		Inverted:          inverted,
	}

	if err := e.persist(ctx, conn); err != nil {
		e.logger.Error("persist ioconnection", zap.Error(err))
		return catalog.IOConnection{}, catalog.HardwareFailure
	}

	e.mu.Lock()
	e.connections[conn.ID] = conn
	e.indexLocked(conn)
	e.mu.Unlock()

	e.publish(ctx, event.TopicIOConnectionAdded, event.IOConnectionPayload{ConnectionID: conn.ID.String()})

	chain := &propagationChain{seen: make(map[string]any)}
	e.propagate(ctx, chain, inputThingID, inputStateTypeID, inputThing.States[inputStateTypeID].Value, 0)

	return conn, catalog.NoError
}

// Disconnect removes a connection, leaving the output Thing's state at
// whatever value it currently holds.
func (e *Engine) Disconnect(ctx context.Context, id uuid.UUID) catalog.ThingError {
	e.mu.Lock()
	conn, ok := e.connections[id]
	if !ok {
		e.mu.Unlock()
		return catalog.ItemNotFound
	}
	delete(e.connections, id)
	e.unindexLocked(conn)
	e.mu.Unlock()

	if err := e.deletePersisted(ctx, id); err != nil {
		e.logger.Error("delete ioconnection", zap.Error(err))
	}
	e.publish(ctx, event.TopicIOConnectionRemoved, event.IOConnectionPayload{ConnectionID: id.String()})
	return catalog.NoError
}

// Connections returns every persisted IO connection.
func (e *Engine) Connections() []catalog.IOConnection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]catalog.IOConnection, 0, len(e.connections))
	for _, conn := range e.connections {
		out = append(out, conn)
	}
	return out
}

// onThingRemoved implicitly removes every connection referencing the
// removed Thing, issuing no action on the other side (spec.md §4.8).
func (e *Engine) onThingRemoved(ctx context.Context, ev integration.Event) {
	payload, ok := ev.Payload.(event.ThingRemovedPayload)
	if !ok {
		return
	}
	thingID, err := uuid.Parse(payload.ThingID)
	if err != nil {
		return
	}

	e.mu.Lock()
	var affected []uuid.UUID
	for id, conn := range e.connections {
		if conn.InputThingID == thingID || conn.OutputThingID == thingID {
			affected = append(affected, id)
		}
	}
	for _, id := range affected {
		conn := e.connections[id]
		delete(e.connections, id)
		e.unindexLocked(conn)
	}
	e.mu.Unlock()

	for _, id := range affected {
		if err := e.deletePersisted(ctx, id); err != nil {
			e.logger.Error("delete ioconnection on thing removal", zap.Error(err))
		}
		e.publish(ctx, event.TopicIOConnectionRemoved, event.IOConnectionPayload{ConnectionID: id.String()})
	}
}

// propagationChain tracks the targets already written within a single
// cascading propagation so a wired-back loop cannot write the same
// value twice in one dispatcher tick (spec.md §9 "State change loops").
type propagationChain struct {
	seen map[string]any // "thingId:stateTypeId" -> mapped value already written
}

func (e *Engine) onStateChanged(ctx context.Context, ev integration.Event) {
	payload, ok := ev.Payload.(event.StateChangedPayload)
	if !ok {
		return
	}
	thingID, err := uuid.Parse(payload.ThingID)
	if err != nil {
		return
	}
	stateTypeID, err := uuid.Parse(payload.StateTypeID)
	if err != nil {
		return
	}

	atomic.AddInt64(&e.tick, 1)
	chain := &propagationChain{seen: make(map[string]any)}
	e.propagate(ctx, chain, thingID, stateTypeID, payload.Value, 0)
}

// propagate delivers one input state change to every connection wired
// to it, recursing into the resulting output changes so a cascading
// chain of connections resolves synchronously within one tick.
func (e *Engine) propagate(ctx context.Context, chain *propagationChain, thingID, stateTypeID uuid.UUID, value any, depth int) {
	if depth >= e.maxLoopDepth {
		e.logger.Warn("ioconnection propagation exceeded max loop depth",
			zap.String("thing_id", thingID.String()), zap.String("state_type_id", stateTypeID.String()))
		return
	}

	e.mu.RLock()
	ids := append([]uuid.UUID(nil), e.byInput[key(thingID, stateTypeID)]...)
	conns := make([]catalog.IOConnection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := e.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	e.mu.RUnlock()

	for _, conn := range conns {
		e.propagateOne(ctx, chain, conn, value, depth)
	}
}

func (e *Engine) propagateOne(ctx context.Context, chain *propagationChain, conn catalog.IOConnection, inputValue any, depth int) {
	outputThing, ok := e.things.Find(conn.OutputThingID)
	if !ok {
		return
	}
	outputClass, ok := e.classes.FindThingClass(outputThing.ThingClassID)
	if !ok {
		return
	}
	outputStateType, ok := outputClass.FindStateType(conn.OutputStateTypeID)
	if !ok {
		return
	}

	inputThing, ok := e.things.Find(conn.InputThingID)
	if !ok {
		return
	}
	inputClass, ok := e.classes.FindThingClass(inputThing.ThingClassID)
	if !ok {
		return
	}
	inputStateType, ok := inputClass.FindStateType(conn.InputStateTypeID)
	if !ok {
		return
	}

	mapped, ok := mapValue(inputStateType, inputThing.States[conn.InputStateTypeID], outputStateType, outputThing.States[conn.OutputStateTypeID], inputValue, conn.Inverted)
	if !ok {
		return
	}

	targetKey := key(conn.OutputThingID, conn.OutputStateTypeID)
	if prev, seen := chain.seen[targetKey]; seen && prev == mapped {
		e.logger.Debug("dropped ioconnection propagation loop",
			zap.String("connection_id", conn.ID.String()))
		observePropagation("loop_dropped")
		return
	}
	chain.seen[targetKey] = mapped

	action := catalog.Action{
		ActionTypeID: conn.OutputStateTypeID,
		Params: catalog.ParamList{
			{ParamTypeID: conn.OutputStateTypeID, Value: mapped},
		},
	}
	if err := e.executor.ExecuteAction(ctx, outputThing, action); err != catalog.NoError {
		e.logger.Warn("ioconnection propagation action failed",
			zap.String("connection_id", conn.ID.String()), zap.String("status", string(err)))
		observePropagation(string(err))
		return
	}
	observePropagation("success")

	e.propagate(ctx, chain, conn.OutputThingID, conn.OutputStateTypeID, mapped, depth+1)
}

// classify determines a state's connectability kind (spec.md §4.8).
func classify(st catalog.StateType, sv catalog.StateValue) kind {
	if st.ValueType == catalog.ValueBool {
		return kindDigital
	}
	if !isNumeric(st.ValueType) {
		return kindOpaque
	}
	if _, _, ok := bounds(st, sv); ok {
		return kindAnalog
	}
	return kindOpaque
}

func isNumeric(vt catalog.ValueType) bool {
	return vt == catalog.ValueInt || vt == catalog.ValueUint || vt == catalog.ValueDouble
}

// bounds resolves the effective min/max for an analog state, favoring
// the live instance override over the class's static declaration.
func bounds(st catalog.StateType, sv catalog.StateValue) (min, max float64, ok bool) {
	minAny, maxAny := st.MinValue, st.MaxValue
	if sv.MinValue != nil {
		minAny = sv.MinValue
	}
	if sv.MaxValue != nil {
		maxAny = sv.MaxValue
	}
	minF, okMin := toFloat(minAny)
	maxF, okMax := toFloat(maxAny)
	if !okMin || !okMax {
		return 0, 0, false
	}
	return minF, maxF, true
}

// mapValue applies the digital or analog propagation formula (spec.md
// §4.8).
func mapValue(inputST catalog.StateType, inputSV catalog.StateValue, outputST catalog.StateType, outputSV catalog.StateValue, value any, inverted bool) (any, bool) {
	switch classify(inputST, inputSV) {
	case kindDigital:
		b, ok := value.(bool)
		if !ok {
			return nil, false
		}
		return b != inverted, true
	case kindAnalog:
		inMin, inMax, ok := bounds(inputST, inputSV)
		if !ok || inMin == inMax {
			return nil, false
		}
		outMin, outMax, ok := bounds(outputST, outputSV)
		if !ok {
			return nil, false
		}
		v, ok := toFloat(value)
		if !ok {
			return nil, false
		}
		x := (v - inMin) / (inMax - inMin)
		if x < 0 {
			x = 0
		} else if x > 1 {
			x = 1
		}
		if inverted {
			x = 1 - x
		}
		return outMin + x*(outMax-outMin), true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func key(thingID, stateTypeID uuid.UUID) string {
	return thingID.String() + ":" + stateTypeID.String()
}

func (e *Engine) indexLocked(conn catalog.IOConnection) {
	k := key(conn.InputThingID, conn.InputStateTypeID)
	e.byInput[k] = append(e.byInput[k], conn.ID)
}

func (e *Engine) unindexLocked(conn catalog.IOConnection) {
	k := key(conn.InputThingID, conn.InputStateTypeID)
	ids := e.byInput[k]
	for i, id := range ids {
		if id == conn.ID {
			e.byInput[k] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if e.bus != nil {
		e.bus.Publish(ctx, integration.Event{Topic: topic, Source: "ioconn", Payload: payload})
	}
}

func (e *Engine) persist(ctx context.Context, conn catalog.IOConnection) error {
	return e.db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ioconnections (id, input_thing_id, input_state_type_id, output_thing_id, output_state_type_id, inverted)
			VALUES (?, ?, ?, ?, ?, ?)
		`, conn.ID.String(), conn.InputThingID.String(), conn.InputStateTypeID.String(),
			conn.OutputThingID.String(), conn.OutputStateTypeID.String(), boolToInt(conn.Inverted))
		return err
	})
}

func (e *Engine) deletePersisted(ctx context.Context, id uuid.UUID) error {
	return e.db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM ioconnections WHERE id = ?`, id.String())
		return err
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
