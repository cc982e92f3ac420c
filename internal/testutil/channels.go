// Package testutil provides shared test utilities for VoiceForge packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// LongTestTimeout is for operations that may take longer, such as
	// vocoder analysis of several seconds of audio.
	LongTestTimeout = 60 * time.Second
)

// WaitForError waits for a value on ch or fails after timeout, and returns
// the received error.
func WaitForError(t *testing.T, ch <-chan error, timeout time.Duration, msg string) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		require.Fail(t, msg)
		return nil
	}
}
