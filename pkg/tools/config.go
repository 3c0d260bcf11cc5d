package tools

import (
	"fmt"
	"reflect"
	"slices"
	"time"
)

// Options are the values a tool's flags may reference by field name.
type Options struct {
	Target  string
	WorkDir string
}

type FlagConfig struct {
	Flag         string `yaml:"flag" mapstructure:"flag"`
	Option       string `yaml:"option" mapstructure:"option"`
	Required     bool   `yaml:"required" mapstructure:"required"`
	Default      string `yaml:"default" mapstructure:"default"`
	IsBoolean    bool   `yaml:"is_boolean" mapstructure:"is_boolean"`
	IsPositional bool   `yaml:"is_positional" mapstructure:"is_positional"`
}

// Output formats understood by the adapters.
const (
	FormatNative  = "native"
	FormatGeneric = "generic"
)

// Output streams a tool may report on.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ToolConfig describes how one analyzer is invoked.
type ToolConfig struct {
	Name             string        `yaml:"name" validate:"required"`
	Description      string        `yaml:"description"`
	Command          string        `yaml:"command" validate:"required"`
	Flags            []FlagConfig  `yaml:"flags" validate:"dive"`
	Format           string        `yaml:"format" validate:"omitempty,oneof=native generic"`
	Output           string        `yaml:"output" validate:"omitempty,oneof=stdout stderr"`
	SuccessExitCodes []int         `yaml:"success_exit_codes"`
	FileGlobs        []string      `yaml:"file_globs"`
	Timeout          time.Duration `yaml:"timeout"`
	Disabled         bool          `yaml:"disabled"`
}

// IsSuccessExit reports whether the exit code means the tool ran to the end.
// Many analyzers exit non-zero when they found something.
func (tc *ToolConfig) IsSuccessExit(code int) bool {
	if len(tc.SuccessExitCodes) == 0 {
		return code == 0
	}
	return slices.Contains(tc.SuccessExitCodes, code)
}

// OutputStream defaults to stdout.
func (tc *ToolConfig) OutputStream() string {
	if tc.Output == "" {
		return StreamStdout
	}
	return tc.Output
}

// OutputFormat defaults to native.
func (tc *ToolConfig) OutputFormat() string {
	if tc.Format == "" {
		return FormatNative
	}
	return tc.Format
}

// BuildArgs renders the configured flags against options. Flags referring
// to an Option take the value of the options field with that name.
func (tc *ToolConfig) BuildArgs(options interface{}) ([]string, error) {
	var args []string
	optionsValue := reflect.ValueOf(options)
	if optionsValue.Kind() == reflect.Ptr {
		optionsValue = optionsValue.Elem()
	}

	for _, flag := range tc.Flags {
		if flag.Option == "" {
			if flag.Flag != "" {
				args = append(args, flag.Flag)
			}
			if flag.Default != "" {
				args = append(args, flag.Default)
			}
			continue
		}

		value := flag.Default
		fieldValue := optionsValue.FieldByName(flag.Option)
		if fieldValue.IsValid() {
			if v := fmt.Sprintf("%v", fieldValue.Interface()); v != "" {
				value = v
			}
		} else if flag.Default == "" {
			return nil, fmt.Errorf("field '%s' not found in options", flag.Option)
		}

		if flag.Required && value == "" {
			return nil, fmt.Errorf("required option '%s' missing", flag.Option)
		}

		switch {
		case flag.IsBoolean:
			if value == "true" {
				args = append(args, flag.Flag)
			}
		case flag.IsPositional:
			if value != "" {
				args = append(args, value)
			}
		case value != "":
			args = append(args, flag.Flag, value)
		}
	}
	return args, nil
}

func clone(tc ToolConfig) ToolConfig {
	tc.Flags = slices.Clone(tc.Flags)
	tc.SuccessExitCodes = slices.Clone(tc.SuccessExitCodes)
	tc.FileGlobs = slices.Clone(tc.FileGlobs)
	return tc
}
