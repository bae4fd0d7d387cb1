package output

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/raidwatch/raidwatch-go/internal/rulefile"
)

// MaxStringsFileSize is the maximum allowed size for a strings file (1MB).
const MaxStringsFileSize = 1 * 1024 * 1024

// StringsFile represents the structure of a YAML strings file.
//
// Example YAML file:
//
//	version: 1
//	strings:
//	  cleave.warn:
//	    en: "Cleave on ${target}"
//	    de: "Cleave auf ${target}"
//	  adds.soon:
//	    en: "Adds in ${seconds}s"
type StringsFile struct {
	// Version is the strings file format version. Currently only version 1
	// is supported.
	Version int `yaml:"version"`

	// Strings maps template keys to per-locale template text.
	Strings Tables `yaml:"strings"`
}

// SupportedStringsVersion is the currently supported strings file version.
const SupportedStringsVersion = 1

// Load reads and parses a strings file from the given path.
func Load(path string) (*StringsFile, error) {
	data, err := rulefile.ReadLimited(path, MaxStringsFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read strings file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a strings file from a byte slice.
func LoadBytes(data []byte) (*StringsFile, error) {
	if len(data) == 0 {
		return nil, errors.New("strings file is empty")
	}

	var sf StringsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := sf.Validate(); err != nil {
		return nil, err
	}
	return &sf, nil
}

// Validate performs schema-level validation on the strings file.
func (sf *StringsFile) Validate() error {
	if sf.Version != SupportedStringsVersion {
		return fmt.Errorf("unsupported version %d (only version %d is supported)",
			sf.Version, SupportedStringsVersion)
	}
	if len(sf.Strings) == 0 {
		return errors.New("at least one string entry is required")
	}
	for key, locales := range sf.Strings {
		if key == "" {
			return errors.New("string entry has empty key")
		}
		if len(locales) == 0 {
			return fmt.Errorf("string %q has no locales", key)
		}
		for locale, tmpl := range locales {
			if locale == "" {
				return fmt.Errorf("string %q has an empty locale name", key)
			}
			if tmpl == "" {
				return fmt.Errorf("string %q locale %q has empty template", key, locale)
			}
		}
	}
	return nil
}
