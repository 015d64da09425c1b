package model

import (
	"go.uber.org/zap"
)

// Load opens the model artifact. It never fails: any error is logged and
// reported as Unavailable so the rest of the service keeps running.
func Load(cfg Config, classes int, logger *zap.Logger) State {
	logger = logger.Named("model")

	session, err := NewSession(cfg, classes)
	if err != nil {
		logger.Error("error loading model", zap.String("path", cfg.Path), zap.Error(err))
		return Unavailable{Reason: err}
	}

	logger.Info("model loaded successfully",
		zap.String("path", cfg.Path),
		zap.String("layout", string(session.layout)),
		zap.Int("classes", classes),
	)
	return Loaded{Classifier: session}
}

// Close releases the classifier held by s, if it owns resources.
func Close(s State) {
	if loaded, ok := s.(Loaded); ok {
		if c, ok := loaded.Classifier.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
