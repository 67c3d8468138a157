package devbot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Turn is one exchange: what the user is heard saying and the chunks the
// bot streams back.
type Turn struct {
	User string   `yaml:"user"`
	Bot  []string `yaml:"bot"`
}

type Script struct {
	Turns      []Turn        `yaml:"turns"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
	Pause      time.Duration `yaml:"pause"`
	Loop       bool          `yaml:"loop"`
}

func DefaultScript() Script {
	return Script{
		Turns: []Turn{
			{
				User: "Hi, I'd like to book an appointment.",
				Bot:  []string{"Hello!", "I can help", "with that.", "What day", "works for you?"},
			},
			{
				User: "Thursday afternoon, if possible.",
				Bot:  []string{"Thursday", "at three", "is open.", "Shall I", "book it?"},
			},
			{
				User: "Yes please.",
				Bot:  []string{"Done.", "You're booked", "for Thursday", "at three."},
			},
		},
		ChunkDelay: 120 * time.Millisecond,
		Pause:      1500 * time.Millisecond,
	}
}

// LoadScript reads a YAML script. Unset timings keep their defaults.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	s := DefaultScript()
	s.Turns = nil
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

func (s *Script) Validate() error {
	if len(s.Turns) == 0 {
		return fmt.Errorf("at least one turn is required")
	}
	for i, t := range s.Turns {
		if len(t.Bot) == 0 {
			return fmt.Errorf("turn %d: bot reply is empty", i)
		}
	}
	if s.ChunkDelay < 0 || s.Pause < 0 {
		return fmt.Errorf("timings cannot be negative")
	}
	return nil
}
