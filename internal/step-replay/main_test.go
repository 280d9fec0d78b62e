package replay

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheCacophonyProject/battery-steps/stepestimator"
	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `# unplugged for a few minutes then plugged into AC
elapsed_ms,status,plug,level,screen,power_save
0,3,0,80,off,false
60000,3,0,79,off,false
180000, 3, 0, 77, 2, true
240000,2,1,77,off,false
`

func TestReadObservations(t *testing.T) {
	observations, err := readObservations(strings.NewReader(testCSV))
	require.NoError(t, err)
	require.Len(t, observations, 4)

	assert.Equal(t, stepestimator.Observation{
		Status:          stepestimator.StatusDischarging,
		Plug:            stepestimator.PlugNone,
		Level:           77,
		Screen:          stepestimator.ScreenOn,
		PowerSave:       true,
		Uptime:          3 * time.Minute,
		ElapsedRealtime: 3 * time.Minute,
	}, observations[2])
	assert.Equal(t, stepestimator.PlugAC, observations[3].Plug)
}

func TestReadObservationsErrors(t *testing.T) {
	tests := map[string]string{
		"bad level":       "0,3,0,101,off,false\n",
		"bad number":      "0,3,zero,50,off,false\n",
		"bad screen":      "0,3,0,50,sideways,false\n",
		"bad power save":  "0,3,0,50,off,maybe\n",
		"missing columns": "0,3,0,50\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readObservations(strings.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestReplay(t *testing.T) {
	log = logging.NewLogger("error")
	observations, err := readObservations(strings.NewReader(testCSV))
	require.NoError(t, err)

	var out bytes.Buffer
	e := replay(observations, &out)

	expected := []string{
		"0s: unplugged at 80%",
		"0s: level 80%, discharge, remaining unknown, to full unknown",
		"1m0s: level 79%, discharge, remaining unknown, to full unknown",
		"3m0s: level 77%, discharge, remaining 1h17m0s, to full unknown",
		"4m0s: plugged-in at 77%",
		"4m0s: level 77%, charge, remaining unknown, to full unknown",
		"discharge steps: 2, charge steps: 0, discharged since charge: 3%",
	}
	assert.Equal(t, expected, strings.Split(strings.TrimSpace(out.String()), "\n"))
	assert.Len(t, e.History(stepestimator.Discharge), 2)
}

func TestDumpAndInspect(t *testing.T) {
	log = logging.NewLogger("error")
	observations, err := readObservations(strings.NewReader(testCSV))
	require.NoError(t, err)
	e := replay(observations, &bytes.Buffer{})

	path := filepath.Join(t.TempDir(), "steps.bin")
	require.NoError(t, writeDump(path, e))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, stepestimator.FrameSize(2)+stepestimator.FrameSize(0))

	var out bytes.Buffer
	require.NoError(t, inspect(data, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "discharge history, 2 steps", lines[0])
	assert.Contains(t, lines[1], "level 77, 1m0s, mode screen=off, modified 0x05")
	assert.Equal(t, "charge history, 0 steps", lines[3])

	assert.Error(t, inspect(data[:len(data)-1], &bytes.Buffer{}))
}
