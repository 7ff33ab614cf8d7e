package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prayerhub/internal/command"
)

func newProberForTest(runner command.Runner) *FfprobeProber {
	return NewFfprobeProber(runner, 5*time.Second, zap.NewNop())
}

func TestDurationParsesFfprobeOutput(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("ffprobe")
	runner.Script("ffprobe", command.Result{Stdout: "12.2\n"}, nil)
	prober := newProberForTest(runner)
	path := tempAudioFile(t)

	d, err := prober.Duration(path)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(12.2*float64(time.Second)), d)

	calls := runner.CallsFor("ffprobe")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path}, calls[0])
}

func TestDurationMemoizesPerFileIdentity(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("ffprobe")
	runner.Script("ffprobe", command.Result{Stdout: "3.0"}, nil)
	prober := newProberForTest(runner)
	path := tempAudioFile(t)

	_, err := prober.Duration(path)
	require.NoError(t, err)
	_, err = prober.Duration(path)
	require.NoError(t, err)

	assert.Len(t, runner.CallsFor("ffprobe"), 1)
}

func TestDurationMissingFile(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("ffprobe")
	prober := newProberForTest(runner)

	_, err := prober.Duration("/nonexistent/file.mp3")
	assert.Error(t, err)
}

func TestDurationWithoutFfprobe(t *testing.T) {
	prober := newProberForTest(command.NewFakeRunner())

	_, err := prober.Duration(tempAudioFile(t))
	assert.Error(t, err)
}

func TestDurationRejectsUnusableOutput(t *testing.T) {
	for _, stdout := range []string{"", "N/A", "-1.0", "0"} {
		runner := command.NewFakeRunner()
		runner.AddExecutable("ffprobe")
		runner.Script("ffprobe", command.Result{Stdout: stdout}, nil)
		prober := newProberForTest(runner)

		_, err := prober.Duration(tempAudioFile(t))
		assert.Error(t, err, "stdout=%q", stdout)
	}
}

func TestDurationFfprobeFailure(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.AddExecutable("ffprobe")
	runner.Script("ffprobe", command.Result{ExitCode: 1, Stderr: "bad file"}, nil)
	prober := newProberForTest(runner)

	_, err := prober.Duration(tempAudioFile(t))
	assert.Error(t, err)
}
