package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/JeanRibes/step-sequencer/music"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Ports struct {
		Input  string `yaml:"input"`
		Output string `yaml:"output"`
	} `yaml:"ports"`
	Serial struct {
		Port string `yaml:"port"` // empty: clock comes from the MIDI input
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	Sequencer struct {
		Channel        int    `yaml:"channel"`
		Velocity       int    `yaml:"velocity"`
		PulsesPerStep  int    `yaml:"pulses_per_step"`
		NoteOffChannel string `yaml:"note_off_channel"` // note-on | current
	} `yaml:"sequencer"`
	File string `yaml:"file"`
	Log  struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Preferences string `yaml:"preferences"`
}

func DefaultConfig() Config {
	var c Config
	c.Ports.Input = "step-sequencer"
	c.Ports.Output = "step-sequencer"
	c.Sequencer.Channel = music.DEFAULT_CHANNEL
	c.Sequencer.Velocity = music.DEFAULT_VELOCITY
	c.Sequencer.PulsesPerStep = music.DEFAULT_PULSES_PER_STEP
	c.Sequencer.NoteOffChannel = "note-on"
	c.Log.Level = "info"
	c.Log.File = "step-sequencer.log"
	c.Preferences = "data.json"
	return c
}

// LoadConfig overlays filename on the defaults. A missing file is not an
// error.
func LoadConfig(filename string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%s: %w", filename, err)
	}
	return config, nil
}

func (c Config) Parameters() (music.Parameters, error) {
	p := music.DefaultParameters()
	p.Velocity = uint8(min(max(c.Sequencer.Velocity, 0), music.MAX_VELOCITY))
	p.Channel = uint8(min(max(c.Sequencer.Channel, music.MIN_CHANNEL), music.MAX_CHANNEL))
	p.PulsesPerStep = max(c.Sequencer.PulsesPerStep, 1)
	switch c.Sequencer.NoteOffChannel {
	case "", "note-on":
		p.NoteOffChannel = music.ChannelAtNoteOn
	case "current":
		p.NoteOffChannel = music.ChannelAtNoteOff
	default:
		return p, fmt.Errorf("note_off_channel %q: want note-on or current", c.Sequencer.NoteOffChannel)
	}
	return p, nil
}

func (c Config) LogLevel() charmlog.Level {
	level, err := charmlog.ParseLevel(c.Log.Level)
	if err != nil {
		return charmlog.InfoLevel
	}
	return level
}
