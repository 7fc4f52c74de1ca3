// Package config loads sima's manifest and per-service YAML files into
// service.Config values.
//
// The manifest format itself isn't part of the supervisor kernel's
// contract, but the loader still lives in this repository since
// cmd/sima needs one to build a service.Table from at boot.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/canonical/x-go/strutil/shlex"

	"sima/internal/service"
)

// DefaultManifestPath is where cmd/sima looks for the manifest unless
// overridden.
const DefaultManifestPath = "/etc/sima.yml"

// manifest is the top-level /etc/sima.yml document.
type manifest struct {
	Services []string `yaml:"services"`
}

// serviceFile is the schema of each file a manifest's services list
// points to.
type serviceFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Cmdline     string `yaml:"cmdline"`
}

// Load reads the manifest at manifestPath and every service file it
// references, returning the configured services in manifest order.
// Duplicate names across service files are a load-time error, as is a
// missing name, missing cmdline, or a cmdline with unbalanced quoting.
func Load(manifestPath string) ([]service.Config, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", manifestPath, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse manifest %s: %w", manifestPath, err)
	}

	seen := make(map[string]string, len(m.Services)) // name -> file it came from
	configs := make([]service.Config, 0, len(m.Services))
	for _, path := range m.Services {
		c, err := loadServiceFile(path)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q in %s and %s", c.Name, other, path)
		}
		seen[c.Name] = path
		configs = append(configs, c)
	}
	return configs, nil
}

func loadServiceFile(path string) (service.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.Config{}, fmt.Errorf("cannot read service file %s: %w", path, err)
	}
	var f serviceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return service.Config{}, fmt.Errorf("cannot parse service file %s: %w", path, err)
	}
	if f.Name == "" {
		return service.Config{}, fmt.Errorf("service file %s: name is required", path)
	}
	if f.Cmdline == "" {
		return service.Config{}, fmt.Errorf("service file %s: cmdline is required", path)
	}
	// Validate cmdline syntax early: the launcher still hands the raw
	// string to "/bin/sh -c exec ...", so this can only reject clearly
	// malformed quoting sooner than spawn time, never change behavior.
	if _, err := shlex.Split(f.Cmdline); err != nil {
		return service.Config{}, fmt.Errorf("service file %s: cmdline syntax error: %w", path, err)
	}
	return service.Config{
		Name:        f.Name,
		Description: f.Description,
		Cmdline:     f.Cmdline,
	}, nil
}
