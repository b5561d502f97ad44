package config

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

func (l LogConfig) level() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the process logger writing to out.
func (l LogConfig) NewLogger(out io.Writer) (*logrus.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
