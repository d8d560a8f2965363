package config

import (
	"sort"
	"strconv"
	"strings"

	"gsplit/pkg/errors"
)

// Section provides typed access to a config section with access tracking.
type Section struct {
	name     string
	options  map[string]string
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{
		name:     name,
		options:  opts,
		accessed: make(map[string]struct{}),
	}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	v, ok := s.options[key]
	if ok {
		s.accessed[key] = struct{}{}
	}
	return v, ok
}

// Get returns a string option value, or the fallback if absent.
func (s *Section) Get(option, fallback string) string {
	if v, ok := s.lookup(option); ok {
		return v
	}
	return fallback
}

// GetInt returns an integer option value, or the fallback if absent.
func (s *Section) GetInt(option string, fallback int) (int, error) {
	v, ok := s.lookup(option)
	if !ok {
		return fallback, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Newf(errors.ErrConfig, "option %q in section [%s]: %q is not an integer", option, s.name, v)
	}
	return i, nil
}

// GetFloat returns a float option value, or the fallback if absent.
func (s *Section) GetFloat(option string, fallback float64) (float64, error) {
	v, ok := s.lookup(option)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrConfig, "option %q in section [%s]: %q is not a number", option, s.name, v)
	}
	return f, nil
}

// GetBool returns a boolean option value, or the fallback if absent.
// Accepts true/false, yes/no, on/off, 1/0.
func (s *Section) GetBool(option string, fallback bool) (bool, error) {
	v, ok := s.lookup(option)
	if !ok {
		return fallback, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, errors.Newf(errors.ErrConfig, "option %q in section [%s]: %q is not a boolean", option, s.name, v)
}

// GetChoice returns an option value restricted to the given choices.
func (s *Section) GetChoice(option, fallback string, choices ...string) (string, error) {
	v, ok := s.lookup(option)
	if !ok {
		v = fallback
	}
	v = strings.ToLower(strings.TrimSpace(v))
	for _, c := range choices {
		if v == c {
			return v, nil
		}
	}
	return "", errors.Newf(errors.ErrConfig, "option %q in section [%s]: %q is not one of %s",
		option, s.name, v, strings.Join(choices, "|"))
}

func (s *Section) unusedOptions() []string {
	var result []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			result = append(result, opt)
		}
	}
	sort.Strings(result)
	return result
}
