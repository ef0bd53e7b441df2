package rfc2136

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

type zonesFile struct {
	Zones []zoneEntry `yaml:"zones"`
}

type zoneEntry struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Zone           string `yaml:"zone"`
	TSIGKey        string `yaml:"tsig-key"`
	TSIGSecret     string `yaml:"tsig-secret"`
	TSIGSecretFile string `yaml:"tsig-secret-file"`
	TSIGAlg        string `yaml:"tsig-alg"`
	MinTTL         int64  `yaml:"min-ttl"`
	Timeout        string `yaml:"timeout"`
}

// LoadZoneConfigsFromFile reads a YAML zones file of the form
//
//	zones:
//	  - host: ns1.example.com
//	    zone: example.com.
//	    tsig-key: key
//	    tsig-secret-file: /run/secrets/tsig
//
// and returns one ZoneConfig per entry with TSIG secret files resolved.
func LoadZoneConfigsFromFile(path string) ([]ZoneConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading zones file: %w", err)
	}
	var f zonesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing zones file: %w", err)
	}
	if len(f.Zones) == 0 {
		return nil, errors.New("zones file defines no zones")
	}

	configs := make([]ZoneConfig, 0, len(f.Zones))
	for i, z := range f.Zones {
		if z.Host == "" {
			return nil, fmt.Errorf("zones[%d]: host is required", i)
		}
		if z.Zone == "" {
			return nil, fmt.Errorf("zones[%d]: zone is required", i)
		}
		zc := ZoneConfig{
			Host:           z.Host,
			Port:           z.Port,
			Zone:           z.Zone,
			TSIGKey:        z.TSIGKey,
			TSIGSecret:     z.TSIGSecret,
			TSIGSecretFile: z.TSIGSecretFile,
			TSIGAlg:        z.TSIGAlg,
			MinTTL:         z.MinTTL,
		}
		if z.Timeout != "" {
			d, err := time.ParseDuration(z.Timeout)
			if err != nil {
				return nil, fmt.Errorf("zones[%d]: invalid timeout %q: %w", i, z.Timeout, err)
			}
			zc.Timeout = d
		}
		if err := resolveSecretFile(&zc); err != nil {
			return nil, fmt.Errorf("zones[%d]: %w", i, err)
		}
		configs = append(configs, zc)
	}
	return configs, nil
}

// resolveSecretFile reads TSIGSecretFile into TSIGSecret and clears it.
func resolveSecretFile(zc *ZoneConfig) error {
	if zc.TSIGSecretFile == "" {
		return nil
	}
	if zc.TSIGSecret != "" {
		return errors.New("tsig-secret and tsig-secret-file are mutually exclusive")
	}
	b, err := os.ReadFile(zc.TSIGSecretFile)
	if err != nil {
		return fmt.Errorf("reading tsig secret file: %w", err)
	}
	zc.TSIGSecret = strings.TrimSpace(string(b))
	zc.TSIGSecretFile = ""
	return nil
}
