package main

import (
	"io"

	log "github.com/sirupsen/logrus"
)

func parseLogLevel(level string, out io.Writer) {
	log.SetOutput(out)

	switch level {
	case `info`:
		log.SetLevel(log.InfoLevel)
	case `warn`:
		log.SetLevel(log.WarnLevel)
	case `error`:
		log.SetLevel(log.ErrorLevel)
	case `fatal`:
		log.SetLevel(log.FatalLevel)
	case `quiet`:
		log.SetLevel(log.PanicLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
}
