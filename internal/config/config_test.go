package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piccolo-os/piccolo/kernel"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2, cfg.Cores)
	assert.Equal(t, Duration(time.Millisecond), cfg.Tick)
	assert.Equal(t, Size(64<<10), cfg.StackMemory)
	assert.Equal(t, Size(2<<10), cfg.StackSize)
	require.NotEmpty(t, cfg.Tasks)

	led := cfg.Tasks[0]
	assert.Equal(t, "led", led.Name)
	assert.Equal(t, Size(1024), led.Stack)
	args, err := led.Args()
	require.NoError(t, err)
	assert.Equal(t, []string{"blink", "-pin", "25", "-period", "1000ms"}, args)

	k, err := kernel.New(cfg.Options()...)
	require.NoError(t, err)
	defer k.Close()
	assert.Equal(t, 2, k.NumCores())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
cores: 1
stack_memory: 4096
tasks:
  - name: quoted
    run: 'primes -signal "my reporter"'
    stack: 0.5KB
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Cores)
	assert.Equal(t, Size(4096), cfg.StackMemory)
	assert.Equal(t, kernel.DefaultMaxTasks, cfg.MaxTasks)
	assert.Equal(t, Size(512), cfg.Tasks[0].Stack)
	args, err := cfg.Tasks[0].Args()
	require.NoError(t, err)
	assert.Equal(t, []string{"primes", "-signal", "my reporter"}, args)
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field": "bogus: 1",
		"bad size":      "stack_size: 2XB",
		"bad tick":      "tick: soon",
		"no cores":      "cores: 0",
		"bad core":      "tasks: [{name: a, core: 2, run: blink}]",
		"no name":       "tasks: [{run: blink}]",
		"duplicate":     "tasks: [{name: a, run: blink}, {name: a, run: blink}]",
		"empty run":     "tasks: [{name: a}]",
		"bad quoting":   `tasks: [{name: a, run: "blink 'x"}]`,
		"too many":      "max_tasks: 1\ntasks: [{name: a, run: x}, {name: b, run: y}]",
		"small memory":  "stack_memory: 1KB",
		"big stack":     "stack_memory: 4KB\ntasks: [{name: a, run: blink, stack: 8KB}]",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "piccolo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cores: 3\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Cores)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("cores: x\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, path)
}
