package seed

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Preset sizes a seeding run.
type Preset struct {
	Name                    string `yaml:"name"`
	Description             string `yaml:"description"`
	Riders                  int    `yaml:"riders"`
	Drivers                 int    `yaml:"drivers"`
	Agents                  int    `yaml:"agents"`
	Rides                   int    `yaml:"rides"`
	SupportThreads          int    `yaml:"support_threads"`
	MessagesPerConversation int    `yaml:"messages_per_conversation"`
	// ArchiveEvery archives every Nth conversation. Zero disables.
	ArchiveEvery int `yaml:"archive_every"`
	// MarkReadEvery has the counterpart read every Nth conversation. Zero disables.
	MarkReadEvery int   `yaml:"mark_read_every"`
	Seed          int64 `yaml:"seed"`
}

var builtinPresets = map[string]Preset{
	"minimal": {
		Name:                    "minimal",
		Description:             "One rider, one driver, one agent",
		Riders:                  1,
		Drivers:                 1,
		Agents:                  1,
		Rides:                   2,
		SupportThreads:          1,
		MessagesPerConversation: 4,
		Seed:                    42,
	},
	"city": {
		Name:                    "city",
		Description:             "A busy city with archived and read history",
		Riders:                  25,
		Drivers:                 10,
		Agents:                  3,
		Rides:                   60,
		SupportThreads:          15,
		MessagesPerConversation: 12,
		ArchiveEvery:            5,
		MarkReadEvery:           3,
	},
	"load": {
		Name:                    "load",
		Description:             "Large inboxes for pagination testing",
		Riders:                  100,
		Drivers:                 40,
		Agents:                  5,
		Rides:                   500,
		SupportThreads:          100,
		MessagesPerConversation: 40,
		ArchiveEvery:            4,
		MarkReadEvery:           2,
	},
}

// BuiltinPresetNames lists the compiled-in presets.
func BuiltinPresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPreset returns a compiled-in preset by name.
func LookupPreset(name string) (Preset, error) {
	p, ok := builtinPresets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %v)", name, BuiltinPresetNames())
	}
	return p, nil
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets decodes a YAML document of the form `presets: [...]`.
func LoadPresets(r io.Reader) (map[string]Preset, error) {
	var doc presetFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	out := make(map[string]Preset, len(doc.Presets))
	for _, p := range doc.Presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := out[p.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		out[p.Name] = p
	}
	return out, nil
}

// LoadPresetFile reads path and returns the preset called name.
func LoadPresetFile(path, name string) (Preset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Preset{}, err
	}
	defer func() { _ = f.Close() }()

	presets, err := LoadPresets(f)
	if err != nil {
		return Preset{}, err
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset %q not found in %s", name, path)
	}
	return p, nil
}

// Validate checks that the preset can produce at least one conversation.
func (p Preset) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("preset name is required")
	case p.Riders < 1:
		return fmt.Errorf("preset %q: riders must be at least 1", p.Name)
	case p.Rides > 0 && p.Drivers < 1:
		return fmt.Errorf("preset %q: rides need at least one driver", p.Name)
	case p.SupportThreads > 0 && p.Agents < 1:
		return fmt.Errorf("preset %q: support threads need at least one agent", p.Name)
	case p.Drivers < 0, p.Agents < 0, p.Rides < 0, p.SupportThreads < 0,
		p.MessagesPerConversation < 0, p.ArchiveEvery < 0, p.MarkReadEvery < 0:
		return fmt.Errorf("preset %q: counts must not be negative", p.Name)
	}
	return nil
}
