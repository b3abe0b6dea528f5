package cfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type countriesFile struct {
	Countries []string `yaml:"countries"`
}

// LoadCountries reads a YAML document of the form:
//
//	countries:
//	  - Canada
//	  - Peru
func LoadCountries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read countries file: %w", err)
	}

	var file countriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse countries file %s: %w", path, err)
	}

	countries := cleanCountries(file.Countries)
	if len(countries) == 0 {
		return nil, fmt.Errorf("countries file %s lists no countries", path)
	}
	return countries, nil
}
