package state

import (
	"time"

	"go.uber.org/zap"
)

// newLocalEnv creates environment usable before configuration is loaded:
// commands which fail early still have somewhere to log.
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
		Log:   zap.NewNop(),
	}
}
