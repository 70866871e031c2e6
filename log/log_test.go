package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleInt      = 3
	sampleRoot     = []byte{0x12, 0x34}
	sampleList     = []int64{10, 0, -10}
	sampleDuration = time.Second
	sampleTime     = time.Unix(12345678, 0)

	errSample = errors.New("some error")
)

func doLogs() {
	Infof("processed %d transactions, root %x", sampleInt, sampleRoot)
	Debugw("applying transaction", "index", 1, "type", "transfer")
	Errorf("cannot commit block: %v", errSample)
	Warnw("various types",
		"list", sampleList,
		"duration", sampleDuration,
		"time", sampleTime,
	)
	Error(errSample)
}

func TestErrorOutput(t *testing.T) {
	c := qt.New(t)
	var errBuf bytes.Buffer
	logTestWriter = io.Discard
	Init(LogLevelDebug, logTestWriterName, &errBuf)
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	Infof("only to the main output")
	Errorf("block %d rejected", 7)
	c.Assert(strings.Contains(errBuf.String(), "block 7 rejected"), qt.IsTrue)
	c.Assert(strings.Contains(errBuf.String(), "only to the main output"), qt.IsFalse)
	c.Assert(Level(), qt.Equals, LogLevelDebug)
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init("debug", "stderr", nil)
	Debugf("%s", v)
	// should not panic since the flag is false

	// now enable panic and try again: should recover() and never reach t.Errorf()
	panicOnInvalidChars = true
	Init("debug", "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard
	Init("debug", logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
