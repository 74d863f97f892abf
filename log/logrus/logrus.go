// Package logrus adapts a logrus logger to the bridge's
// log.Log interface.
package logrus

import (
	"fmt"
	"sync/atomic"

	logrus "github.com/sirupsen/logrus"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
)

type Logrus struct {
	Logger  *logrus.Logger
	Enable  log.Topics
	counter atomic.Uint64
}

func (l *Logrus) Enabled(topics log.Topics) bool {
	return (l.Enable & topics) != 0
}

// levelOf picks the logrus level of the most severe topic.
func levelOf(topics log.Topics) logrus.Level {
	switch {
	case topics&log.TopicError != 0:
		return logrus.WarnLevel
	case topics&log.TopicVerdict != 0:
		return logrus.InfoLevel
	case topics&log.TopicCall != 0:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// expandFields flattens dokan.DebugStruct values into
// dotted field names, so that "info.Context" is filterable
// by log processors.
func expandFields(fields log.M) logrus.Fields {
	result := make(logrus.Fields, len(fields))
	for name, field := range fields {
		if ds, ok := field.(dokan.DebugStruct); ok {
			if m := ds.Fields(); m != nil {
				for fieldName, value := range m {
					result[name+"."+fieldName] = value
				}
				continue
			}
		}
		result[name] = field
	}
	return result
}

func (l *Logrus) Call(name string, args log.M) string {
	if !l.Enabled(log.TopicCall) {
		return ""
	}
	cookie := fmt.Sprintf("%x", l.counter.Add(1))
	l.Logger.WithFields(logrus.Fields{
		"name":   name,
		"cookie": cookie,
	}).WithFields(expandFields(args)).Log(levelOf(log.TopicCall), "call")
	return cookie
}

func (l *Logrus) Return(name, cookie string, rets log.M) {
	if !l.Enabled(log.TopicCall) {
		return
	}
	l.Logger.WithFields(logrus.Fields{
		"name":   name,
		"cookie": cookie,
	}).WithFields(expandFields(rets)).Log(levelOf(log.TopicCall), "return")
}

func (l *Logrus) Log(topics log.Topics, msg string) {
	if !l.Enabled(topics) {
		return
	}
	l.Logger.Log(levelOf(topics&l.Enable), msg)
}

func (l *Logrus) Logf(topics log.Topics, msg string, args ...any) {
	if !l.Enabled(topics) {
		return
	}
	l.Logger.Logf(levelOf(topics&l.Enable), msg, args...)
}

var _ log.Log = (*Logrus)(nil)

// Default logs every topic through a new logrus logger at
// trace level.
func Default() *Logrus {
	logger := logrus.New()
	logger.SetLevel(logrus.TraceLevel)
	return &Logrus{
		Logger: logger,
		Enable: log.AllTopics,
	}
}

// New wraps an existing logger with the given topics.
func New(logger *logrus.Logger, topics log.Topics) *Logrus {
	return &Logrus{
		Logger: logger,
		Enable: topics,
	}
}
