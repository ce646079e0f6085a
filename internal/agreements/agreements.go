// Package agreements is the catalogue of trade agreements referenced by certificates of origin
package agreements

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/intergov/notary/internal/core/domain"
)

//go:embed agreements.yaml
var defaultCatalogue []byte

// Agreement is a trade agreement
type Agreement struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type file struct {
	Agreements []Agreement `yaml:"agreements"`
}

// Catalogue resolves agreement names
type Catalogue struct {
	byName map[string]Agreement
}

// Load reads the catalogue at path, the built in catalogue is used when path is empty
func Load(path string) (*Catalogue, error) {
	data := defaultCatalogue
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, domain.NewConfigurationError("trade agreements", err)
		}
	}
	return Parse(data)
}

// Parse builds a catalogue from its yaml form
func Parse(data []byte) (*Catalogue, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.NewConfigurationError("trade agreements", err)
	}
	c := &Catalogue{byName: map[string]Agreement{}}
	for _, a := range f.Agreements {
		if a.Code == "" || a.Name == "" {
			return nil, domain.NewConfigurationError("trade agreements", fmt.Errorf("agreement without code or name: %+v", a))
		}
		for _, n := range append([]string{a.Code, a.Name}, a.Aliases...) {
			c.byName[normalize(n)] = a
		}
	}
	return c, nil
}

func normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Match returns the agreement with the given code, name or alias. Case and spacing are ignored.
func (c *Catalogue) Match(name string) (Agreement, bool) {
	a, ok := c.byName[normalize(name)]
	return a, ok
}
