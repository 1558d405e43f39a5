// Package host implements the Plugin Host (spec component C3): it
// wraps internal/registry.Registry with the catalog-registration and
// per-plugin configuration concerns that sit between a bare plugin
// lifecycle and the thing-lifecycle engine's view of "integrations".
// Grounded on internal/registry.Registry for plugin bookkeeping and on
// internal/things/store.go's migration-table-plus-RWMutex-guarded-map
// shape for persisted plugin configuration.
package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homehub/homehub/internal/event"
	"github.com/homehub/homehub/internal/registry"
	"github.com/homehub/homehub/pkg/catalog"
	"github.com/homehub/homehub/pkg/integration"
)

// Host owns the registered plugins, their declared catalog
// contributions, and their persisted configuration.
type Host struct {
	reg *registry.Registry
	cat *catalog.Catalog
	db  integration.Store
	bus integration.EventBus

	mu     sync.RWMutex
	config map[uuid.UUID]catalog.ParamList // pluginID -> current config

	logger *zap.Logger
}

// New creates a Host around an already-populated registry.
func New(reg *registry.Registry, cat *catalog.Catalog, db integration.Store, bus integration.EventBus, logger *zap.Logger) *Host {
	return &Host{
		reg:    reg,
		cat:    cat,
		db:     db,
		bus:    bus,
		config: make(map[uuid.UUID]catalog.ParamList),
		logger: logger,
	}
}

var migrations = []integration.Migration{
	{
		Version:     1,
		Description: "create plugin_config table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS plugin_config (
					plugin_id  TEXT PRIMARY KEY,
					config_json TEXT NOT NULL
				);
			`)
			return err
		},
	},
}

// Migrate applies the Host's schema migrations.
func (h *Host) Migrate(ctx context.Context) error {
	return h.db.Migrate(ctx, "host", migrations)
}

// RegisterCatalogs feeds every registered plugin's declared vendors,
// thing classes, and browser-item-action types into the type catalog.
// Called once, after Validate and before InitAll, so thing-class
// lookups made during plugin Init already see a complete catalog.
func (h *Host) RegisterCatalogs() {
	for _, p := range h.reg.All() {
		info := p.Info()
		h.cat.RegisterPlugin(info.ID, info.Catalog)
	}
}

// LoadConfig revives persisted plugin configuration from the store.
func (h *Host) LoadConfig(ctx context.Context) error {
	rows, err := h.db.DB().QueryContext(ctx, `SELECT plugin_id, config_json FROM plugin_config`)
	if err != nil {
		return fmt.Errorf("load plugin config: %w", err)
	}
	defer rows.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	for rows.Next() {
		var pluginIDStr, configJSON string
		if err := rows.Scan(&pluginIDStr, &configJSON); err != nil {
			return fmt.Errorf("scan plugin config: %w", err)
		}
		pluginID, err := uuid.Parse(pluginIDStr)
		if err != nil {
			h.logger.Warn("dropping plugin config row with invalid plugin id", zap.String("plugin_id", pluginIDStr))
			continue
		}
		var params catalog.ParamList
		if err := json.Unmarshal([]byte(configJSON), &params); err != nil {
			return fmt.Errorf("decode plugin config for %s: %w", pluginID, err)
		}
		h.config[pluginID] = params
	}
	return rows.Err()
}

// PluginConfiguration returns the plugin's current configuration
// params, falling back to its declared defaults when none have ever
// been set.
func (h *Host) PluginConfiguration(pluginID uuid.UUID) (catalog.ParamList, catalog.ThingError) {
	info, ok := h.pluginInfo(pluginID)
	if !ok {
		return nil, catalog.PluginNotFound
	}

	h.mu.RLock()
	stored, ok := h.config[pluginID]
	h.mu.RUnlock()
	if ok {
		return stored, catalog.NoError
	}

	defaults, _ := catalog.ValidateParams(info.ConfigParamTypes, nil)
	return defaults, catalog.NoError
}

// SetPluginConfiguration validates candidate against the plugin's
// declared config param types, persists it, notifies the plugin via
// PluginConfigurationChanged, and publishes TopicPluginConfigChanged.
func (h *Host) SetPluginConfiguration(ctx context.Context, pluginID uuid.UUID, candidate catalog.ParamList) catalog.ThingError {
	info, ok := h.pluginInfo(pluginID)
	if !ok {
		return catalog.PluginNotFound
	}

	params, thingErr := catalog.ValidateParams(info.ConfigParamTypes, candidate)
	if thingErr != catalog.NoError {
		return thingErr
	}

	configJSON, err := json.Marshal(params)
	if err != nil {
		h.logger.Error("failed to marshal plugin config", zap.Error(err))
		return catalog.InvalidParameter
	}

	if err := h.db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO plugin_config (plugin_id, config_json) VALUES (?, ?)
			ON CONFLICT(plugin_id) DO UPDATE SET config_json = excluded.config_json
		`, pluginID.String(), string(configJSON))
		return err
	}); err != nil {
		h.logger.Error("failed to persist plugin config", zap.Error(err))
		return catalog.SetupFailed
	}

	h.mu.Lock()
	h.config[pluginID] = params
	h.mu.Unlock()

	if ti, ok := h.thingIntegration(info.Name); ok {
		ti.PluginConfigurationChanged(ctx, params)
	}

	if h.bus != nil {
		h.bus.Publish(ctx, integration.Event{
			Topic:   event.TopicPluginConfigChanged,
			Source:  "host",
			Payload: event.PluginConfigChangedPayload{PluginID: pluginID.String()},
		})
	}
	return catalog.NoError
}

// StartMonitoringAutoThings invokes StartMonitoringAutoThings on every
// active ThingIntegration plugin, once, after initial thing revival
// (spec.md §4.5; pkg/integration.ThingIntegration's doc contract).
func (h *Host) StartMonitoringAutoThings(ctx context.Context) {
	for _, p := range h.reg.All() {
		ti, ok := p.(integration.ThingIntegration)
		if !ok {
			continue
		}
		ti.StartMonitoringAutoThings(ctx)
	}
}

// Plugins returns the Info of every registered plugin, for the façade's
// GetPlugins query (spec.md §6).
func (h *Host) Plugins() []integration.PluginInfo {
	plugins := h.reg.All()
	infos := make([]integration.PluginInfo, 0, len(plugins))
	for _, p := range plugins {
		infos = append(infos, p.Info())
	}
	return infos
}

// ThingIntegration resolves the ThingIntegration backing pluginID, if
// the plugin is registered, active, and implements it.
func (h *Host) ThingIntegration(pluginID uuid.UUID) (integration.ThingIntegration, bool) {
	info, ok := h.pluginInfo(pluginID)
	if !ok {
		return nil, false
	}
	return h.thingIntegration(info.Name)
}

func (h *Host) thingIntegration(name string) (integration.ThingIntegration, bool) {
	p, ok := h.reg.Resolve(name)
	if !ok {
		return nil, false
	}
	ti, ok := p.(integration.ThingIntegration)
	return ti, ok
}

func (h *Host) pluginInfo(pluginID uuid.UUID) (integration.PluginInfo, bool) {
	for _, p := range h.reg.All() {
		info := p.Info()
		if info.ID == pluginID {
			return info, true
		}
	}
	return integration.PluginInfo{}, false
}
