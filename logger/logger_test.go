package logger_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsherman212/libsym/logger"
)

func TestLoggerWriteAndTail(t *testing.T) {
	log := logger.NewLogger(100)
	w := &strings.Builder{}

	log.Write(w)
	require.Equal(t, "", w.String())

	log.Log(logger.Allow, "test", "this is a test")
	log.Write(w)
	require.Equal(t, "test: this is a test\n", w.String())

	w.Reset()

	log.Log(logger.Allow, "test2", "this is another test")
	log.Write(w)
	require.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 100)
	require.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 2)
	require.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 1)
	require.Equal(t, "test2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 0)
	require.Equal(t, "", w.String())
}

type prohibitLogging struct {
	allow bool
}

func (p prohibitLogging) AllowLogging() bool {
	return p.allow
}

func TestPermissions(t *testing.T) {
	log := logger.NewLogger(100)
	w := &strings.Builder{}

	for _, allow := range []bool{true, false, true, false} {
		log.Clear()
		w.Reset()
		log.Log(prohibitLogging{allow: allow}, "tag", "detail")
		log.Write(w)
		if allow {
			require.Equal(t, "tag: detail\n", w.String())
		} else {
			require.Equal(t, "", w.String())
		}
	}
}

func TestErrorLogging(t *testing.T) {
	log := logger.NewLogger(100)
	w := &strings.Builder{}

	err := errors.New("test error")

	log.Log(logger.Allow, "tag", err)
	log.Write(w)
	require.Equal(t, "tag: test error\n", w.String())

	log.Clear()
	w.Reset()

	log.Logf(logger.Allow, "tag", "wrapped: %v", err)
	log.Write(w)
	require.Equal(t, "tag: wrapped: test error\n", w.String())
}

type stringerTest struct{}

func (stringerTest) String() string {
	return "stringer test"
}

func TestStringerLogging(t *testing.T) {
	log := logger.NewLogger(100)
	w := &strings.Builder{}

	log.Log(logger.Allow, "tag", stringerTest{})
	log.Write(w)
	require.Equal(t, "tag: stringer test\n", w.String())
}

func TestIntLogging(t *testing.T) {
	log := logger.NewLogger(100)
	w := &strings.Builder{}

	log.Log(logger.Allow, "tag", 100)
	log.Write(w)
	require.Equal(t, "tag: 100\n", w.String())
}

func TestRingOverwrite(t *testing.T) {
	log := logger.NewLogger(3)
	w := &strings.Builder{}

	log.Log(logger.Allow, "a", 1)
	log.Log(logger.Allow, "b", 2)
	log.Log(logger.Allow, "c", 3)
	log.Log(logger.Allow, "d", 4)

	log.Write(w)
	require.Equal(t, "b: 2\nc: 3\nd: 4\n", w.String())
}
