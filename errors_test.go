package main

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorSinkAcceptsLateErrors(t *testing.T) {
	hook := test.NewGlobal()
	t.Cleanup(hook.Reset)

	errs := newErrorSink()

	assert.NotPanics(t, func() {
		errs <- errors.New("write tcp: broken pipe")
		errs <- errors.New("websocket: close sent")
	})

	failed := func() []string {
		var msgs []string
		for _, entry := range hook.AllEntries() {
			if err, ok := entry.Data["error"].(error); ok && entry.Message == "request failed" {
				msgs = append(msgs, err.Error())
			}
		}
		return msgs
	}

	require.Eventually(t, func() bool { return len(failed()) >= 2 }, time.Second, 10*time.Millisecond)
	assert.Subset(t, failed(), []string{"write tcp: broken pipe", "websocket: close sent"})
}
