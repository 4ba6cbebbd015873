// Package config loads portsweep settings from an optional config file.
//
// YAML files (.yaml, .yml) are decoded with gopkg.in/yaml.v3. JSON files
// (.json, .jsonc) may contain comments and trailing commas; they are passed
// through github.com/tidwall/jsonc before the standard encoding/json decoder.
//
// Command-line flags always take precedence over file values; that merge is
// done by the cli package, which knows which flags were set explicitly.
package config
