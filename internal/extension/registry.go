package extension

import (
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// Registry holds the protocol extensions known to the engine, in
// registration order. It is built once at startup and passed to the
// components that dispatch sources and criteria.
type Registry struct {
	extensions []ProtocolExtension
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.Named("extensions")}
}

// Register adds an extension. A second extension with the same name
// replaces the first one in place.
func (r *Registry) Register(ext ProtocolExtension) {
	for i, existing := range r.extensions {
		if existing.Name() == ext.Name() {
			r.extensions[i] = ext
			r.logger.Warn("Replaced protocol extension", zap.String("name", ext.Name()))
			return
		}
	}
	r.extensions = append(r.extensions, ext)
	r.logger.Info("Registered protocol extension", zap.String("name", ext.Name()))
}

// FindSourceExtension returns the first extension that supports the source
// variant and accepts the host configuration.
func (r *Registry) FindSourceExtension(src connector.Source, host *telemetry.HostConfiguration) (ProtocolExtension, bool) {
	for _, ext := range r.extensions {
		if ext.SupportsSource(src) && ext.IsValidConfiguration(host) {
			return ext, true
		}
	}
	return nil, false
}

// FindCriterionExtension returns the first extension that supports the
// criterion variant and accepts the host configuration.
func (r *Registry) FindCriterionExtension(c connector.Criterion, host *telemetry.HostConfiguration) (ProtocolExtension, bool) {
	for _, ext := range r.extensions {
		if ext.SupportsCriterion(c) && ext.IsValidConfiguration(host) {
			return ext, true
		}
	}
	return nil, false
}

// Names returns the names of the registered extensions in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.extensions))
	for _, ext := range r.extensions {
		names = append(names, ext.Name())
	}
	return names
}
