// Package catalog is the grade/subject/unit/topic tree the learner picks
// a session from.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

type Topic struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Unit struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Topics []Topic `yaml:"topics"`
}

type Subject struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Grade      string `yaml:"grade"`
	GradeLabel string `yaml:"grade_label"`
	Units      []Unit `yaml:"units"`
}

// Entry is one selectable topic with its ancestry.
type Entry struct {
	Grade   string
	Subject string
	Unit    string
	Topic   string
	// ID is "<subject id>/<unit id>/<topic id>".
	ID string
}

// Catalog holds the subjects and a flat index of topics.
type Catalog struct {
	subjects []Subject
	entries  []Entry
	byID     map[string]Entry
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc struct {
		Subjects []Subject `yaml:"subjects"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate(doc.Subjects); err != nil {
		return nil, err
	}

	c := &Catalog{subjects: doc.Subjects, byID: make(map[string]Entry)}
	for _, s := range doc.Subjects {
		for _, u := range s.Units {
			for _, t := range u.Topics {
				e := Entry{
					Grade:   s.Grade,
					Subject: s.Name,
					Unit:    u.Name,
					Topic:   t.Name,
					ID:      s.ID + "/" + u.ID + "/" + t.ID,
				}
				c.entries = append(c.entries, e)
				c.byID[e.ID] = e
			}
		}
	}
	return c, nil
}

// validate reports every structural problem at once.
func validate(subjects []Subject) error {
	var errs []string
	if len(subjects) == 0 {
		errs = append(errs, "no subjects")
	}
	seen := make(map[string]bool)
	for _, s := range subjects {
		if s.ID == "" || s.Name == "" || s.Grade == "" {
			errs = append(errs, fmt.Sprintf("subject %q: id, name and grade are required", s.ID))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("duplicate subject ID: %q", s.ID))
		}
		seen[s.ID] = true
		for _, u := range s.Units {
			if u.ID == "" || u.Name == "" {
				errs = append(errs, fmt.Sprintf("subject %q: unit without id or name", s.ID))
			}
			if len(u.Topics) == 0 {
				errs = append(errs, fmt.Sprintf("unit %q has no topics", s.ID+"/"+u.ID))
			}
			topics := make(map[string]bool)
			for _, t := range u.Topics {
				if t.ID == "" || t.Name == "" {
					errs = append(errs, fmt.Sprintf("unit %q: topic without id or name", s.ID+"/"+u.ID))
				}
				if topics[t.ID] {
					errs = append(errs, fmt.Sprintf("duplicate topic ID %q in unit %q", t.ID, s.ID+"/"+u.ID))
				}
				topics[t.ID] = true
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Subjects returns the subjects in file order.
func (c *Catalog) Subjects() []Subject {
	return slices.Clone(c.subjects)
}

// Entries returns every topic in file order.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Find returns the topic with the given "<subject>/<unit>/<topic>" ID.
func (c *Catalog) Find(id string) (Entry, error) {
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("topic not found: %q", id)
	}
	return e, nil
}

// Title is the label shown in pickers.
func (e Entry) Title() string {
	return e.Topic
}

// Description is the grade, subject and unit line shown under the title.
func (e Entry) Description() string {
	return fmt.Sprintf("%s %s · %s", e.Grade, e.Subject, e.Unit)
}

// FilterValue lets Entry serve as a list item.
func (e Entry) FilterValue() string {
	return e.Topic + " " + e.Subject + " " + e.Unit
}
