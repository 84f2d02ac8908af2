//go:build unix

package crash_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/dianlight/scopelog/crash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalFiresHook(t *testing.T) {
	errOut := &syncBuffer{}
	exited := make(chan int, 1)
	h := crash.New(
		crash.WithErrorWriter(errOut),
		crash.WithExit(func(code int) { exited <- code }),
		crash.WithSignals(syscall.SIGUSR1),
	)
	defer h.Stop()

	dumped := make(chan struct{}, 1)
	h.Register(crash.DumperFunc(func() { dumped <- struct{}{} }))
	h.Install()
	h.Install()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	select {
	case code := <-exited:
		assert.Equal(t, crash.ExitCode, code)
	case <-time.After(2 * time.Second):
		t.Fatal("hook did not fire")
	}
	assert.Len(t, dumped, 1)
	assert.Contains(t, errOut.String(), "reason: user defined signal 1")
}
