// Package log defines the logging interface of the bridge.
//
// The bridge does not pick a logging framework. Callers
// adapt the logger of their choice to the Log interface,
// or use the logrus adapter in log/logrus.
//
// Messages are classified by topics rather than levels,
// so that a caller can, for example, trace every callback
// without also seeing every branch decision.
package log

// Topics specify the masks of the logger topic.
//
// The bridge checks whether a topic is enabled before it
// builds the arguments of a log call.
type Topics int

const (
	// TopicCall records the arguments and the result of
	// every driver callback.
	//
	// This affects `Log.Call` and `Log.Return`.
	TopicCall Topics = 1 << iota

	// TopicVerdict records the choices made inside a
	// callback, such as why a create was refused.
	TopicVerdict

	// TopicTrace records the branch traces in callbacks.
	TopicTrace

	// TopicError records failures that are swallowed by
	// the bridge, such as a failed removal during cleanup
	// or an internal state violation.
	TopicError
)

const (
	AllTopics = Topics(0) |
		TopicCall |
		TopicVerdict |
		TopicTrace |
		TopicError
)

// M is the shorthand for `map[string]any`.
type M = map[string]any

// Log is the logger interface.
type Log interface {
	// Enabled checks if any of the topics is enabled.
	Enabled(Topics) bool

	// Call records the arguments of a callback and returns
	// a cookie that associates the later Return.
	Call(name string, args M) string

	// Return records the result of a callback, using the
	// cookie generated by Call.
	Return(name, cookie string, rets M)

	// Log with the specified topics.
	Log(topics Topics, msg string)

	// Logf with the specified topics.
	Logf(topics Topics, msg string, args ...any)
}

// NoLog is the null implementation of the Log.
type NoLog struct{}

func (NoLog) Enabled(Topics) bool                         { return false }
func (NoLog) Call(string, M) string                       { return "" }
func (NoLog) Log(topics Topics, msg string)               {}
func (NoLog) Logf(topics Topics, msg string, args ...any) {}
func (NoLog) Return(name, cookie string, rets M)          {}

var _ Log = (*NoLog)(nil)

// Span records a Call when TopicCall is enabled and returns
// the function recording the matching Return. The args
// function is only evaluated when the topic is enabled.
func Span(l Log, name string, args func() M) func(rets func() M) {
	if l == nil || !l.Enabled(TopicCall) {
		return func(func() M) {}
	}
	cookie := l.Call(name, args())
	return func(rets func() M) {
		l.Return(name, cookie, rets())
	}
}
