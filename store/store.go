// Package store keeps certificate templates and students in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/certify/api"
	"github.com/flanksource/commons/logger"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS templates (
	course     TEXT NOT NULL,
	batch      TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	descriptor TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (course, batch)
);
CREATE TABLE IF NOT EXISTS students (
	public_id TEXT PRIMARY KEY,
	course    TEXT NOT NULL,
	batch     TEXT NOT NULL,
	status    TEXT NOT NULL,
	data      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_students_batch ON students(course, batch, status);
`

// Store is a SQLite backed repository of templates and students.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, log: logger.GetLogger("store")}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Course is a course code and its display name.
type Course struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// PutCourse creates or renames a course.
func (s *Store) PutCourse(ctx context.Context, c Course) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO courses (code, name) VALUES (?, ?)
		 ON CONFLICT(code) DO UPDATE SET name = excluded.name`, c.Code, c.Name)
	if err != nil {
		return fmt.Errorf("failed to save course %s: %w", c.Code, err)
	}
	return nil
}

// CourseName returns the display name of a course, the code itself when unknown.
func (s *Store) CourseName(ctx context.Context, code string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM courses WHERE code = ?`, code).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return code, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get course %s: %w", code, err)
	}
	return name, nil
}

// Template is the stored descriptor of one course/batch. Version increases on every
// update and is part of rendered document cache keys.
type Template struct {
	Course     string                 `json:"course" yaml:"course"`
	Batch      string                 `json:"batch" yaml:"batch"`
	Version    int                    `json:"version" yaml:"version,omitempty"`
	Descriptor api.TemplateDescriptor `json:"template" yaml:"template"`
	UpdatedAt  time.Time              `json:"updatedAt" yaml:"-"`
}

// TemplateID identifies a course/batch template in logs.
func TemplateID(course, batch string) string {
	return course + "/" + batch
}

// PutTemplate stores the descriptor for course/batch, bumping its version.
func (s *Store) PutTemplate(ctx context.Context, course, batch string, tpl api.TemplateDescriptor) (int, error) {
	if tpl.Width <= 0 {
		tpl.Width = api.DefaultWidth
	}
	if tpl.Height <= 0 {
		tpl.Height = api.DefaultHeight
	}
	tpl.ID = TemplateID(course, batch)

	data, err := json.Marshal(tpl)
	if err != nil {
		return 0, fmt.Errorf("failed to encode template %s: %w", tpl.ID, err)
	}

	var version int
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO templates (course, batch, version, descriptor, updated_at) VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(course, batch) DO UPDATE SET
		   version = templates.version + 1, descriptor = excluded.descriptor, updated_at = excluded.updated_at
		 RETURNING version`,
		course, batch, string(data), time.Now().UTC()).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to save template %s: %w", tpl.ID, err)
	}
	s.log.Debugf("saved %s version %d", tpl, version)
	return version, nil
}

// Template returns the descriptor for course/batch, wrapping api.ErrNotFound when none is configured.
func (s *Store) Template(ctx context.Context, course, batch string) (*Template, error) {
	var data string
	t := Template{Course: course, Batch: batch}
	err := s.db.QueryRowContext(ctx,
		`SELECT version, descriptor, updated_at FROM templates WHERE course = ? AND batch = ?`,
		course, batch).Scan(&t.Version, &data, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", TemplateID(course, batch), api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", TemplateID(course, batch), err)
	}
	if err := json.Unmarshal([]byte(data), &t.Descriptor); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", TemplateID(course, batch), err)
	}
	return &t, nil
}

// PutStudent creates or replaces a student by public id.
func (s *Store) PutStudent(ctx context.Context, st Student) error {
	if st.PublicID == "" {
		return fmt.Errorf("student %q has no public id", st.Name)
	}
	if st.Status == "" {
		st.Status = StatusPending
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode student %s: %w", st.PublicID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO students (public_id, course, batch, status, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(public_id) DO UPDATE SET
		   course = excluded.course, batch = excluded.batch, status = excluded.status, data = excluded.data`,
		st.PublicID, st.Course, st.Batch, string(st.Status), string(data))
	if err != nil {
		return fmt.Errorf("failed to save student %s: %w", st.PublicID, err)
	}
	return nil
}

// Student looks up a student by public id, wrapping api.ErrNotFound when unknown.
func (s *Store) Student(ctx context.Context, publicID string) (*Student, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM students WHERE public_id = ?`, publicID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", publicID, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student %s: %w", publicID, err)
	}
	return s.decodeStudent(ctx, data)
}

// Students lists the students of course/batch, optionally only those with status.
func (s *Store) Students(ctx context.Context, course, batch string, status Status) ([]Student, error) {
	query := `SELECT data FROM students WHERE course = ? AND batch = ?`
	args := []any{course, batch}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY public_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students of %s: %w", TemplateID(course, batch), err)
	}
	var records []string
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, data)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// course names are resolved on the connection released above
	out := make([]Student, 0, len(records))
	for _, data := range records {
		st, err := s.decodeStudent(ctx, data)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (s *Store) decodeStudent(ctx context.Context, data string) (*Student, error) {
	var st Student
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to decode student: %w", err)
	}
	if st.CourseName == "" {
		name, err := s.CourseName(ctx, st.Course)
		if err != nil {
			return nil, err
		}
		st.CourseName = name
	}
	return &st, nil
}
