package device

import "go.uber.org/zap"

// DefaultFaultHandler logs err at fatal level, which exits the process.
// Faults are internal failures a guest cannot observe or recover from: a
// presenter that will not stop, or a window that can no longer present.
func DefaultFaultHandler(err error) {
	Logger().Fatal("io device fault", zap.Error(err))
}
