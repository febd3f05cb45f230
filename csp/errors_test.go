package csp

import (
	"testing"

	"csp-stack/stack"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFromStack(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"used", stack.EUSED, KindAlreadyInUse},
		{"timeout", stack.ETIMEDOUT, KindTimedOut},
		{"wrapped", errors.Wrap(stack.ETX, "sending"), KindTransmitFailed},
		{"fragmentation", stack.ESFP, KindFragmentationFailed},
		{"unknown errno", stack.Errno(-55), KindUnknown},
		{"foreign", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fromStack(tt.err, "doing it")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Contains(t, err.Error(), "doing it")
		})
	}

	assert.NoError(t, fromStack(nil, "nothing"))
}

func TestErrorKindValues(t *testing.T) {
	assert.Equal(t, -4, int(KindAlreadyInUse))
	assert.Equal(t, -9, int(KindNoBuffers))
	assert.NotEqual(t, KindNoBuffers, KindNoBuffersAvailable)
	assert.Equal(t, "connect failed", KindConnectFailed.String())
	assert.Equal(t, "error -55", ErrorKind(-55).String())
}

func TestError(t *testing.T) {
	err := newError(KindTimedOut, "waiting for %d", 3)
	assert.Equal(t, "csp: waiting for 3: timed out", err.Error())
	assert.ErrorIs(t, err, KindTimedOut)
	assert.NotErrorIs(t, err, KindReset)

	assert.Equal(t, "csp: busy", (&Error{Kind: KindBusy}).Error())

	var target *Error
	assert.True(t, errors.As(errors.Wrap(err, "outer"), &target))
	assert.Equal(t, KindTimedOut, target.Kind)

	assert.Equal(t, KindUnknown, KindOf(ErrConnMoved))
}
