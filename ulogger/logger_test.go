package ulogger_test

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/fullnode/ulogger"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesMessage(t *testing.T) {
	var buf bytes.Buffer

	z := ulogger.New("test-service").Output(&buf)
	z.Infof("hello %s", "world")

	assert.Contains(t, buf.String(), "hello world")
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer

	z := ulogger.New("test-service").Output(&buf)
	child := z.With(ulogger.F("peer", "1.2.3.4:8333"))
	child.Infof("connected")

	assert.Contains(t, buf.String(), "1.2.3.4:8333")
}

func TestTestLoggerIsSilent(t *testing.T) {
	var l ulogger.Logger = ulogger.TestLogger{}
	assert.NotPanics(t, func() {
		l.Infof("noop")
		l.With(ulogger.F("a", 1)).Errorf("noop")
	})
}
