package browser

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// NewLauncher builds the launcher for cfg.Mode. The mode cannot change afterwards.
func NewLauncher(cfg Config, logger *zap.Logger) (tracker.Launcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	switch cfg.Mode {
	case ModeLocal, ModeRestricted:
		return newChromeLauncher(cfg, logger), nil
	case ModeStatic:
		return newStaticLauncher(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
}
