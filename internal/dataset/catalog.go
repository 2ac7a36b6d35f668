// Package dataset describes the analytics tables and loads them from CSV.
package dataset

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Column formats that need normalization before storage.
const (
	FormatDate     = "date"
	FormatDateTime = "datetime"
)

type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Format      string `yaml:"format"`
	Description string `yaml:"description"`
}

type Table struct {
	Name        string   `yaml:"name"`
	File        string   `yaml:"file"`
	Description string   `yaml:"description"`
	Columns     []Column `yaml:"columns"`
}

type Catalog struct {
	Tables []Table `yaml:"tables"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Tables) == 0 {
		return nil, fmt.Errorf("catalog defines no tables")
	}
	for _, t := range c.Tables {
		if t.Name == "" || len(t.Columns) == 0 {
			return nil, fmt.Errorf("catalog table %q has no name or columns", t.Name)
		}
	}
	return &c, nil
}

func (c *Catalog) Table(name string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}

func (t Table) Column(name string) (Column, int, bool) {
	for i, col := range t.Columns {
		if col.Name == name {
			return col, i, true
		}
	}
	return Column{}, -1, false
}

// DDL returns the CREATE TABLE statement for the table.
func (t Table) DDL() string {
	defs := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		defs[i] = fmt.Sprintf("\t%s %s", col.Name, col.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", t.Name, strings.Join(defs, ",\n"))
}

// Describe renders the schema section of the SQL generation prompt.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for i, t := range c.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d.  **%s**: %s\n", i+1, t.Name, t.Description)
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "    * `%s` %s: %s\n", col.Name, col.Type, col.Description)
		}
	}
	return b.String()
}
