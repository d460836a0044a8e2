package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the structured logger shared by the whole process. JSON output
// when CERIV_ENV=production, human-readable text otherwise.
func New(level string) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log := logrus.New()
	log.SetLevel(parsed)
	log.SetOutput(os.Stdout)
	if os.Getenv("CERIV_ENV") == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
