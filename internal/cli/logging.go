package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/portsweep/internal/scan"
)

// newLogger builds the CLI logger. Logs go to w (stderr in production) so
// that stdout carries only the report.
//
// In JSON mode log lines are JSON too. Otherwise the text formatter is used,
// with colors only when w is a terminal.
func newLogger(w io.Writer, verbose, asJSON bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if asJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
		return log
	}

	tty := isTerminal(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:    !tty,
		FullTimestamp:    !tty,
		DisableTimestamp: tty,
	})
	return log
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// logEvents logs worker events until the channel is closed.
// Open ports are reported at info level as they are found, in discovery
// order; worker completion is debug detail.
func logEvents(log *logrus.Logger, events <-chan scan.Event) {
	for ev := range events {
		switch ev.Kind {
		case scan.EventPortOpen:
			log.WithFields(logrus.Fields{
				"port":   ev.Port,
				"worker": ev.Worker,
			}).Info("open port found")
		case scan.EventWorkerDone:
			log.WithFields(logrus.Fields{
				"worker":    ev.Worker,
				"attempted": ev.Attempted,
			}).Debug("worker finished")
		}
	}
}
