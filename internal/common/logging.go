package common

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging sets the global logrus level and formatter. format is
// "text" (the default) or "json".
func ConfigureLogging(level, format string) error {
	return configureLogging(os.Stdout, level, format)
}

func configureLogging(out io.Writer, level, format string) error {
	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", format)
	}
	if level != "" {
		lvl, err := log.ParseLevel(level)
		if err != nil {
			return errors.WithStack(err)
		}
		log.SetLevel(lvl)
	}
	log.SetOutput(out)
	return nil
}
