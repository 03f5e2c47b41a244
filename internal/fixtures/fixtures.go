// Package fixtures loads schema, rules, companies and email templates from YAML.
// Every loader falls back to the embedded sample data when given an empty path.
package fixtures

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/prcycle/digest"
	"github.com/liamcoop/prcycle/rules"
	"github.com/liamcoop/prcycle/schema"
)

//go:embed data/*.yaml
var embedded embed.FS

const (
	schemaFile    = "data/schema.yaml"
	rulesFile     = "data/rules.yaml"
	companiesFile = "data/companies.yaml"
	templatesFile = "data/templates.yaml"
)

// CompanyData is one company and its submitted record fields.
type CompanyData struct {
	digest.Company `yaml:",inline"`
	Fields         map[string]schema.Value `yaml:"fields"`
}

// Record returns the evaluation record for the company.
func (c CompanyData) Record() schema.Record {
	return schema.Record{ID: c.ID, Fields: c.Fields}
}

type rulesDoc struct {
	Rules []*rules.Rule `yaml:"rules"`
}

type companiesDoc struct {
	Companies []CompanyData `yaml:"companies"`
}

type templatesDoc struct {
	Templates []digest.EmailTemplate `yaml:"templates"`
}

func read(path, fallback string) ([]byte, error) {
	if path == "" {
		return embedded.ReadFile(fallback)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func decode(path, fallback string, out any) error {
	data, err := read(path, fallback)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		name := path
		if name == "" {
			name = fallback
		}
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// LoadDefinition reads the field schema and derived fields.
func LoadDefinition(path string) (schema.Definition, error) {
	data, err := read(path, schemaFile)
	if err != nil {
		return schema.Definition{}, err
	}
	return schema.ParseDefinition(data)
}

// LoadRules reads rule definitions. Rules are validated when added to an engine.
func LoadRules(path string) ([]*rules.Rule, error) {
	var doc rulesDoc
	if err := decode(path, rulesFile, &doc); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// LoadCompanies reads companies with their record fields.
func LoadCompanies(path string) ([]CompanyData, error) {
	var doc companiesDoc
	if err := decode(path, companiesFile, &doc); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Companies))
	for _, c := range doc.Companies {
		if c.ID == "" {
			return nil, fmt.Errorf("company %q has no id", c.Name)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("company id %s declared twice", c.ID)
		}
		seen[c.ID] = true
	}
	return doc.Companies, nil
}

// LoadTemplates reads email templates.
func LoadTemplates(path string) ([]digest.EmailTemplate, error) {
	var doc templatesDoc
	if err := decode(path, templatesFile, &doc); err != nil {
		return nil, err
	}
	return doc.Templates, nil
}

// Records splits the evaluation records out of companies.
func Records(companies []CompanyData) []schema.Record {
	out := make([]schema.Record, len(companies))
	for i, c := range companies {
		out[i] = c.Record()
	}
	return out
}

// Recipients splits the digest recipients out of companies.
func Recipients(companies []CompanyData) []digest.Company {
	out := make([]digest.Company, len(companies))
	for i, c := range companies {
		out[i] = c.Company
	}
	return out
}

// Template returns the template with the given ID.
func Template(templates []digest.EmailTemplate, id string) (digest.EmailTemplate, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return digest.EmailTemplate{}, false
}
