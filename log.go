package cdpilot

import (
	"go.uber.org/zap"
)

// LogFunc is the common logging func type used throughout cdpilot, matching
// the teacher's injectable logging surface: callers can plug in any logger
// shaped like fmt.Printf.
type LogFunc func(string, ...interface{})

// defaultLoggers builds the default logf/debugf/errf triple backed by a
// zap.SugaredLogger, used for whichever of logf/debugf/errf NewHandler is
// given as nil.
func defaultLoggers() (logf, debugf, errf LogFunc) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op sugared logger; logging must never be
		// able to prevent a browser from starting.
		l = zap.NewNop()
	}
	sugar := l.Sugar()
	return sugar.Infof, sugar.Debugf, sugar.Errorf
}
