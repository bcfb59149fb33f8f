package runtime

import (
	"fmt"
	"strings"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	handlerpkg "github.com/drblury/guildrelay/internal/runtime/handlers"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/relaypath"
)

// Endpoint is a handler bound to a routing path together with the payload
// shape its requests decode into.
type Endpoint struct {
	Path        relaypath.Path
	PayloadType string

	decode handlerpkg.DecodeFunc
	handle handlerpkg.Func
}

// Name is the canonical path, which is also the bus channel.
func (e Endpoint) Name() string {
	return e.Path.String()
}

// Registration describes one endpoint. It is resolved by Discover.
type Registration struct {
	Path  string
	build func() (handlerpkg.Typed, error)
}

// JSONEndpoint registers a handler whose request data decodes into T.
func JSONEndpoint[T any](path string, handler handlerpkg.Handler[T]) Registration {
	return Registration{
		Path: path,
		build: func() (handlerpkg.Typed, error) {
			return handlerpkg.BuildJSON(handler)
		},
	}
}

// Registry is the endpoint table. It is filled once by Discover and only
// read afterwards, so lookups take no locks.
type Registry struct {
	endpoints []Endpoint
}

// Discover validates every registration and builds the registry. The first
// invalid registration aborts discovery. Duplicate paths are kept and
// logged; routing uses the first one.
func Discover(logger loggingpkg.ServiceLogger, registrations ...Registration) (*Registry, error) {
	if logger == nil {
		logger = loggingpkg.Nop()
	}
	if len(registrations) == 0 {
		return nil, errspkg.ErrEndpointRequired
	}

	reg := &Registry{endpoints: make([]Endpoint, 0, len(registrations))}
	seen := make(map[string]bool, len(registrations))
	for i, r := range registrations {
		if r.build == nil {
			return nil, fmt.Errorf("endpoint #%d %q: %w", i, r.Path, errspkg.ErrEndpointRequired)
		}
		path, err := relaypath.Parse(r.Path)
		if err != nil {
			return nil, fmt.Errorf("endpoint #%d: %w", i, err)
		}
		typed, err := r.build()
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", path, err)
		}

		if seen[path.String()] {
			logger.Warn("Duplicate endpoint path, only the first registration is routed", loggingpkg.LogFields{
				"endpoint": path.String(),
			})
		}
		seen[path.String()] = true

		reg.endpoints = append(reg.endpoints, Endpoint{
			Path:        path,
			PayloadType: typed.PayloadType,
			decode:      typed.Decode,
			handle:      typed.Handle,
		})
	}

	logger.Info("Discovered endpoints", loggingpkg.LogFields{"channels": reg.Channels()})
	return reg, nil
}

// Lookup returns the first endpoint whose path equals name, ignoring case.
func (r *Registry) Lookup(name string) (Endpoint, bool) {
	if r == nil {
		return Endpoint{}, false
	}
	for _, e := range r.endpoints {
		if e.Path.EqualString(name) {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Endpoints returns the registered endpoints in registration order.
func (r *Registry) Endpoints() []Endpoint {
	if r == nil {
		return nil
	}
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Channels lists the distinct bus channels to subscribe to.
func (r *Registry) Channels() []string {
	if r == nil {
		return nil
	}
	channels := make([]string, 0, len(r.endpoints))
	seen := make(map[string]bool, len(r.endpoints))
	for _, e := range r.endpoints {
		name := e.Name()
		if seen[name] {
			continue
		}
		seen[name] = true
		channels = append(channels, name)
	}
	return channels
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.endpoints)
}

func (r *Registry) String() string {
	return "Registry[" + strings.Join(r.Channels(), ",") + "]"
}
