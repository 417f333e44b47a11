package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sectionComments documents the top-level sections of a generated file.
var sectionComments = map[string]string{
	"logging":    "Logging configuration\nlevel: DEBUG, INFO, WARN, ERROR; format: text, json; output: stdout, stderr or a file path",
	"metrics":    "Prometheus metrics, served on http://localhost:<port>/metrics when enabled",
	"retry":      "Retry policy for transient failures (attempts includes the first try)",
	"resolvers":  "URI resolvers. Higher priority resolvers are consulted first.\nOptions are backend specific; durations accept values like \"30s\".",
	"shared":     "The shared: namespace. Links redirect path prefixes to directories of any\nbackend; other paths resolve below root.",
	"processors": "Stream processors applied to every resolved resource",
}

// InitConfig writes a configuration file with default values to the
// default location and returns its path.
//
// Returns an error if the file already exists and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a configuration file with default values to path,
// creating parent directories as needed.
//
// Returns an error if the file already exists and force is false.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a file header and a
// comment above every top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping of alternating key and value nodes
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString("# DittoRes Configuration File\n")
	buf.WriteString("#\n")
	buf.WriteString("# Values can be overridden with DITTORES_* environment variables,\n")
	buf.WriteString("# e.g. DITTORES_LOGGING_LEVEL=DEBUG.\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return buf.String(), nil
}
