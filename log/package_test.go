package log

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordLog struct {
	enable  Topics
	entries []string
}

func (r *recordLog) Enabled(topics Topics) bool { return r.enable&topics != 0 }

func (r *recordLog) Call(name string, args M) string {
	r.entries = append(r.entries, fmt.Sprintf("call %s %v", name, args))
	return "c1"
}

func (r *recordLog) Return(name, cookie string, rets M) {
	r.entries = append(r.entries, fmt.Sprintf("return %s %s %v", name, cookie, rets))
}

func (r *recordLog) Log(topics Topics, msg string) {}

func (r *recordLog) Logf(topics Topics, msg string, args ...any) {}

func TestSpan(t *testing.T) {
	assert := assert.New(t)

	func() {
		l := &recordLog{enable: TopicCall}
		done := Span(l, "ReadFile", func() M { return M{"offset": 0} })
		done(func() M { return M{"n": 5} })
		assert.Equal([]string{
			"call ReadFile map[offset:0]",
			"return ReadFile c1 map[n:5]",
		}, l.entries)
	}()

	func() {
		l := &recordLog{enable: TopicError}
		evaluated := false
		done := Span(l, "ReadFile", func() M {
			evaluated = true
			return nil
		})
		done(func() M {
			evaluated = true
			return nil
		})
		assert.False(evaluated)
		assert.Empty(l.entries)
	}()

	func() {
		done := Span(nil, "ReadFile", nil)
		done(nil)
		done = Span(NoLog{}, "ReadFile", nil)
		done(nil)
	}()
}
