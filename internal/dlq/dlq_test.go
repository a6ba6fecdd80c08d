package dlq

import (
	"errors"
	"testing"
)

func TestInvalidMessageError(t *testing.T) {
	m := &InvalidMessage{Partition: 1, Offset: 7, Reason: ReasonDecodeFailed, Err: errors.New("bad json")}
	want := "decode_failed: bad json"
	if got := m.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestInvalidMessageErrorWithoutCause(t *testing.T) {
	m := &InvalidMessage{Partition: 1, Offset: 7, Reason: ReasonProcessorFailed}
	if got := m.Error(); got != ReasonProcessorFailed {
		t.Errorf("Error() = %q, want %q", got, ReasonProcessorFailed)
	}
}
