package collector

import (
	"go.uber.org/zap"

	"github.com/vitalis-app/hwmon/internal/extension"
	"github.com/vitalis-app/hwmon/internal/oscommand"
)

// Builtins returns the protocol extensions built into the engine.
func Builtins(logger *zap.Logger, executor *oscommand.Executor) []extension.ProtocolExtension {
	return []extension.ProtocolExtension{
		NewOSCommandExtension(logger, executor),
		NewJawkExtension(logger, nil),
	}
}

// NewRegistry creates an extension registry holding the built-in
// extensions followed by extra ones. Extensions are registered at startup;
// detection and source execution query the registry afterwards.
func NewRegistry(logger *zap.Logger, executor *oscommand.Executor, extra ...extension.ProtocolExtension) *extension.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := extension.NewRegistry(logger)
	for _, ext := range Builtins(logger, executor) {
		reg.Register(ext)
	}
	for _, ext := range extra {
		reg.Register(ext)
	}
	return reg
}
