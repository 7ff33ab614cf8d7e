package bluetooth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prayerhub/internal/clock"
	"prayerhub/internal/command"
)

const testMAC = "AA:BB:CC:DD:EE:FF"

// sleepRecorder wraps the mock clock and records Sleep durations so backoff
// behaviour can be asserted.
type sleepRecorder struct {
	*clock.MockClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func newManagerForTest(t *testing.T, runner command.Runner) (*Manager, *sleepRecorder) {
	t.Helper()
	clk := &sleepRecorder{MockClock: clock.NewMockClock(time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local))}
	mgr, err := NewManager(runner, clk, testMAC, false, nil, nil, zap.NewNop())
	require.NoError(t, err)
	return mgr, clk
}

func infoConnected() command.Result {
	return command.Result{Stdout: "Device AA:BB:CC:DD:EE:FF\n\tConnected: yes\n"}
}

func infoDisconnected() command.Result {
	return command.Result{Stdout: "Device AA:BB:CC:DD:EE:FF\n\tConnected: no\n"}
}

func TestNewManagerRejectsBadMAC(t *testing.T) {
	runner := command.NewFakeRunner()
	clk := clock.NewMockClock(time.Now())

	for _, mac := range []string{"", "AABBCCDDEEFF", "AA:BB:CC:DD:EE", "GG:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff:00"} {
		_, err := NewManager(runner, clk, mac, false, nil, nil, zap.NewNop())
		assert.Error(t, err, "mac=%q", mac)
	}

	_, err := NewManager(runner, clk, "aa:bb:cc:dd:ee:ff", false, nil, nil, zap.NewNop())
	assert.NoError(t, err)
}

func TestIsConnectedParsesInfoOutput(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", infoConnected(), nil)
	mgr, _ := newManagerForTest(t, runner)

	assert.True(t, mgr.IsConnected())

	calls := runner.CallsFor("bluetoothctl")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"bluetoothctl", "info", testMAC}, calls[0])
}

func TestIsConnectedFalseOnDisconnected(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", infoDisconnected(), nil)
	mgr, _ := newManagerForTest(t, runner)

	assert.False(t, mgr.IsConnected())
}

func TestIsConnectedFalseOnCommandFailure(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", command.Result{ExitCode: 1}, nil)
	mgr, _ := newManagerForTest(t, runner)

	assert.False(t, mgr.IsConnected())
}

func TestEnsureConnectedAlreadyConnected(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", infoConnected(), nil)
	mgr, clk := newManagerForTest(t, runner)

	assert.True(t, mgr.EnsureConnected())
	assert.Len(t, runner.CallsFor("bluetoothctl"), 1)
	assert.Empty(t, clk.recorded())
}

func TestEnsureConnectedRetriesWithBackoff(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	// Every info says disconnected, every connect fails.
	runner.Script("bluetoothctl", infoDisconnected(), nil)
	mgr, clk := newManagerForTest(t, runner)

	assert.False(t, mgr.EnsureConnected())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second},
		clk.recorded())
}

func TestEnsureConnectedSucceedsMidBackoff(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", infoDisconnected(), nil)              // initial check
	runner.Script("bluetoothctl", command.Result{ExitCode: 1}, nil)     // connect 1 fails
	runner.Script("bluetoothctl", command.Result{Stdout: "Connection successful"}, nil) // connect 2
	mgr, clk := newManagerForTest(t, runner)

	assert.True(t, mgr.EnsureConnected())
	assert.Equal(t, []time.Duration{1 * time.Second}, clk.recorded())
}

func TestEnsureConnectedOnceSingleAttempt(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", infoDisconnected(), nil)          // check
	runner.Script("bluetoothctl", command.Result{ExitCode: 1}, nil) // connect fails
	mgr, clk := newManagerForTest(t, runner)

	assert.False(t, mgr.EnsureConnectedOnce())
	assert.Len(t, runner.CallsFor("bluetoothctl"), 2)
	assert.Empty(t, clk.recorded())
}

type fakeSink struct {
	macs []string
}

func (f *fakeSink) EnsureDefaultSink(mac string) {
	f.macs = append(f.macs, mac)
}

func TestOnConnectedEnsuresSinkAndPlaysTone(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("bluetoothctl")
	runner.Script("bluetoothctl", infoDisconnected(), nil) // check
	runner.Script("bluetoothctl", command.Result{Stdout: "Connection successful"}, nil)

	clk := clock.NewMockClock(time.Now())
	sink := &fakeSink{}
	toneCalls := 0
	mgr, err := NewManager(runner, clk, testMAC, true, sink,
		func() { toneCalls++ }, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, mgr.EnsureConnectedOnce())
	assert.Equal(t, []string{testMAC}, sink.macs)
	assert.Equal(t, 1, toneCalls)
}
