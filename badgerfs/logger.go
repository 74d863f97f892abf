package badgerfs

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/godokan/go-dokan/log"
)

// logger forwards the messages of badger. Errors and
// warnings go to TopicError, the rest to TopicTrace.
type logger struct {
	log log.Log
}

var _ badger.Logger = logger{}

func (l logger) logf(topics log.Topics, format string, args ...any) {
	if l.log.Enabled(topics) {
		l.log.Logf(topics, "badger: "+format, args...)
	}
}

func (l logger) Errorf(format string, args ...any) {
	l.logf(log.TopicError, format, args...)
}

func (l logger) Warningf(format string, args ...any) {
	l.logf(log.TopicError, format, args...)
}

func (l logger) Infof(format string, args ...any) {
	l.logf(log.TopicTrace, format, args...)
}

func (l logger) Debugf(format string, args ...any) {
	l.logf(log.TopicTrace, format, args...)
}
