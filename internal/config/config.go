// Package config resolves service settings from three sources with a fixed
// precedence: CLI flags beat BROADCASTD_* environment variables, which beat
// the TOML config file. It also provides a debounced file watcher used to
// hot-reload the platform configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envPrefix = "BROADCASTD_"

// LoadConfig fills an Options struct from the TOML file named by its Config
// field and from the environment. Fields already set through CLI flags are
// left alone; pass the cobra command so changed flags can be detected, or
// nil when there is no flag context.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := changedFlags(cmd)
	file, err := readConfigFile(v, t)
	if err != nil {
		return err
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i)

		if changed[flagName(tag.Name)] {
			continue
		}

		if path := tag.Tag.Get("toml"); path != "" && file != nil {
			if value := lookupTOML(file, path); value != nil {
				applyTOMLValue(field, value)
			}
		}
		if key := tag.Tag.Get("env"); key != "" {
			if value := os.Getenv(envPrefix + key); value != "" {
				applyEnvValue(field, value)
			}
		}
	}
	return nil
}

// changedFlags collects the names of flags the user set explicitly.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

// readConfigFile parses the TOML file named by the struct's Config field.
// A missing file is not an error; defaults and env still apply.
func readConfigFile(v reflect.Value, t reflect.Type) (map[string]any, error) {
	var path string
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Name == "Config" {
			path = v.Field(i).String()
			break
		}
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var file map[string]any
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return file, nil
}

// flagName maps a struct field name to its CLI flag: "AuthUsername" becomes
// "auth-username".
func flagName(fieldName string) string {
	var out []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// lookupTOML walks a dotted tag path like "upstream.hls_url" through the
// parsed file.
func lookupTOML(file map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := file
	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

func applyTOMLValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, len(arr))
		for i, item := range arr {
			if s, ok := item.(string); ok {
				out[i] = s
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// applyEnvValue parses an environment string into the field's type. Slices
// take comma-separated values.
func applyEnvValue(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		out := make([]string, len(parts))
		for i, part := range parts {
			out[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(out))
	}
}
