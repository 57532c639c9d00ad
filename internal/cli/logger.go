package cli

import (
	"go.uber.org/zap"
)

// newLogger returns a development logger writing to stderr in dev mode and a
// production logger limited to warnings otherwise, so command output on
// stdout stays clean.
func newLogger(dev bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
