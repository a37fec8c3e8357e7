// Package config loads the YAML description of a demo system: the kernel
// parameters and the tasks to start on each core.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"

	"github.com/piccolo-os/piccolo/kernel"
)

//go:embed default.yaml
var defaultConfig []byte

// Size is a byte count written either as a plain number or with a unit, like
// "2KB".
type Size int

func (s *Size) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int
	if err := unmarshal(&n); err == nil {
		*s = Size(n)
		return nil
	}
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	b, err := bytesize.Parse(str)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", str, err)
	}
	*s = Size(b)
	return nil
}

// Duration is a time.Duration written like "75ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	v, err := time.ParseDuration(str)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Cores       int        `yaml:"cores"`
	Tick        Duration   `yaml:"tick"`
	MaxTasks    int        `yaml:"max_tasks"`
	StackMemory Size       `yaml:"stack_memory"`
	StackSize   Size       `yaml:"stack_size"`
	Affinity    bool       `yaml:"affinity"`
	Tasks       []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes a task started at boot. Run is the command line of the
// program the task runs, like "blink -pin 25 -period 1s".
type TaskSpec struct {
	Name  string `yaml:"name"`
	Core  int    `yaml:"core"`
	Run   string `yaml:"run"`
	Stack Size   `yaml:"stack"`
}

// Args splits the command line of the task.
func (t TaskSpec) Args() ([]string, error) {
	args, err := shlex.Split(t.Run)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.Name, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("task %s: empty command line", t.Name)
	}
	return args, nil
}

// Default returns the built-in configuration, which reproduces the classic
// two-core demo.
func Default() *Config {
	cfg, err := Parse(defaultConfig)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration. Missing kernel parameters get
// the kernel defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Cores:       kernel.DefaultCores,
		Tick:        Duration(kernel.DefaultTickPeriod),
		MaxTasks:    kernel.DefaultMaxTasks,
		StackMemory: kernel.DefaultStackMemory,
		StackSize:   kernel.DefaultStackSize,
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors that the kernel would only
// report once tasks are being created.
func (c *Config) Validate() error {
	var errs []error
	if c.Cores < 1 {
		errs = append(errs, fmt.Errorf("cores: must be at least 1, got %d", c.Cores))
	}
	if c.StackSize > c.StackMemory {
		errs = append(errs, fmt.Errorf("stack_size: %d exceeds stack_memory %d", c.StackSize, c.StackMemory))
	}
	if len(c.Tasks) > c.MaxTasks {
		errs = append(errs, fmt.Errorf("tasks: %d tasks do not fit in %d slots", len(c.Tasks), c.MaxTasks))
	}
	names := map[string]bool{}
	for i, t := range c.Tasks {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tasks[%d]: missing name", i))
		} else if names[t.Name] {
			errs = append(errs, fmt.Errorf("tasks[%d]: duplicate name %q", i, t.Name))
		}
		names[t.Name] = true
		if t.Core < 0 || t.Core >= c.Cores {
			errs = append(errs, fmt.Errorf("task %s: no core %d", t.Name, t.Core))
		}
		if t.Stack < 0 {
			errs = append(errs, fmt.Errorf("task %s: negative stack size", t.Name))
		} else if t.Stack > c.StackMemory {
			errs = append(errs, fmt.Errorf("task %s: stack %d exceeds stack_memory %d", t.Name, t.Stack, c.StackMemory))
		}
		if _, err := t.Args(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options returns the kernel options the configuration describes.
func (c *Config) Options() []kernel.Option {
	return []kernel.Option{
		kernel.WithCores(c.Cores),
		kernel.WithTickPeriod(time.Duration(c.Tick)),
		kernel.WithMaxTasks(c.MaxTasks),
		kernel.WithStackMemory(int(c.StackMemory)),
		kernel.WithStackSize(int(c.StackSize)),
		kernel.WithThreadAffinity(c.Affinity),
	}
}
