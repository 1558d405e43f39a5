// Package info is the host-side counterpart to pkg/integration's Info
// object family (spec component C4): it constructs each Info kind with
// its timeout wired to an automatic Timeout-finish, declares the
// Translator the JSON-RPC façade uses to render a plugin's raw display
// message in the caller's locale, and tracks how
// many calls are currently in flight across the plugin boundary. The
// Info types themselves (DiscoveryInfo, SetupInfo, PairingInfo, ...)
// live in pkg/integration because plugins construct/inspect them
// directly across the module boundary; this package is the
// host-internal factory and bookkeeping layer above them.
package info

import (
	"time"

	"github.com/google/uuid"

	"github.com/homehub/homehub/pkg/integration"
)

// Default per-kind timeouts (spec.md §4.4), used when a caller passes
// timeout <= 0.
const (
	DefaultDiscoveryTimeout = 30 * time.Second
	DefaultSetupTimeout     = 30 * time.Second
	DefaultPairingTimeout   = 2 * time.Minute
	DefaultActionTimeout    = 10 * time.Second
	DefaultBrowseTimeout    = 10 * time.Second
)

// Translator renders a plugin's raw display message in the caller's
// locale, keyed by the owning plugin (spec.md §4.4, §4.9).
type Translator interface {
	Translate(pluginID uuid.UUID, message, locale string) string
}

func resolveTimeout(timeout, def time.Duration) time.Duration {
	if timeout <= 0 {
		return def
	}
	return timeout
}

// IsAborted reports whether b's timeout elapsed before Finish was
// called.
func IsAborted(b *integration.Base) bool {
	select {
	case <-b.Aborted():
		return true
	default:
		return false
	}
}
