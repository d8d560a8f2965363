// Package config reads the splitter configuration file.
//
// The file uses printer-style INI sections ("option: value" under
// "[section]" headers). Every option can also be set from the command
// line; the file is optional.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gsplit/pkg/errors"
)

// Config provides access to a configuration file with access tracking.
type Config struct {
	sections map[string]*Section
	order    []string // Maintains section order
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections: make(map[string]*Section),
	}
}

// Load reads a configuration file and returns a Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfig, fmt.Sprintf("unable to open %s", path))
	}
	defer f.Close()

	c := New()
	if err := c.parse(bufio.NewScanner(f), path); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses configuration from a string (for tests).
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(bufio.NewScanner(strings.NewReader(data)), "<string>"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parse(scanner *bufio.Scanner, path string) error {
	var currentSection string
	var currentOptions map[string]string

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		// Strip comments
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		// Section header
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if currentSection != "" {
				c.addSection(currentSection, currentOptions)
			}
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return errors.Newf(errors.ErrConfig, "empty section header at line %d in %s", lineNum, path)
			}
			currentSection = header
			currentOptions = make(map[string]string)
			continue
		}

		// Option line
		if currentSection == "" {
			return errors.Newf(errors.ErrConfig, "option outside any section at line %d in %s", lineNum, path)
		}
		var key, value string
		if idx := strings.IndexAny(line, ":="); idx >= 0 {
			key = strings.TrimSpace(line[:idx])
			value = strings.TrimSpace(line[idx+1:])
		} else {
			return errors.Newf(errors.ErrConfig, "malformed option at line %d in %s", lineNum, path)
		}
		if key == "" {
			return errors.Newf(errors.ErrConfig, "empty option name at line %d in %s", lineNum, path)
		}
		currentOptions[key] = value
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrIO, fmt.Sprintf("reading %s", path))
	}

	if currentSection != "" {
		c.addSection(currentSection, currentOptions)
	}
	return nil
}

func (c *Config) addSection(name string, options map[string]string) {
	key := strings.ToLower(name)
	if existing, ok := c.sections[key]; ok {
		// Later definitions merge into the earlier section
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[key] = newSection(name, options)
	c.order = append(c.order, key)
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	_, ok := c.sections[strings.ToLower(name)]
	return ok
}

// GetSection returns the named section, or an empty one if it does not
// exist so that callers fall back to option defaults.
func (c *Config) GetSection(name string) *Section {
	if s, ok := c.sections[strings.ToLower(name)]; ok {
		return s
	}
	return newSection(name, nil)
}

// SectionNames returns section names in file order.
func (c *Config) SectionNames() []string {
	names := make([]string, 0, len(c.order))
	for _, key := range c.order {
		names = append(names, c.sections[key].name)
	}
	return names
}

// UnusedOptions returns "section.option" keys that were never accessed,
// for warning about typos after all sections are read.
func (c *Config) UnusedOptions() []string {
	var result []string
	for _, key := range c.order {
		s := c.sections[key]
		for _, opt := range s.unusedOptions() {
			result = append(result, s.name+"."+opt)
		}
	}
	return result
}
