package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/flanksource/certify/api"
	"gopkg.in/yaml.v3"
)

// TemplateFixture is a template entry of a fixtures file.
type TemplateFixture struct {
	Course   string                 `yaml:"course"`
	Batch    string                 `yaml:"batch"`
	Template api.TemplateDescriptor `yaml:"template"`
}

// Fixtures is the YAML import format for courses, templates and students.
type Fixtures struct {
	Courses   []Course          `yaml:"courses,omitempty"`
	Templates []TemplateFixture `yaml:"templates,omitempty"`
	Students  []Student         `yaml:"students,omitempty"`
}

// ReadFixtures decodes a fixtures document.
func ReadFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return &f, nil
}

// ReadFixturesFile decodes the fixtures file at path.
func ReadFixturesFile(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFixtures(f)
}

// ImportStats counts what an import wrote.
type ImportStats struct {
	Courses   int `json:"courses"`
	Templates int `json:"templates"`
	Students  int `json:"students"`
}

// Import upserts every entry of the fixtures.
func (s *Store) Import(ctx context.Context, f *Fixtures) (ImportStats, error) {
	var stats ImportStats
	for _, c := range f.Courses {
		if err := s.PutCourse(ctx, c); err != nil {
			return stats, err
		}
		stats.Courses++
	}
	for _, t := range f.Templates {
		if _, err := s.PutTemplate(ctx, t.Course, t.Batch, t.Template); err != nil {
			return stats, err
		}
		stats.Templates++
	}
	for _, st := range f.Students {
		if err := s.PutStudent(ctx, st); err != nil {
			return stats, err
		}
		stats.Students++
	}
	s.log.Infof("imported %d courses, %d templates, %d students", stats.Courses, stats.Templates, stats.Students)
	return stats, nil
}
