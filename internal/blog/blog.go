// Package blog serves the site blog from a directory of markdown files. Each
// post is one .md file whose name is the slug, with YAML front matter for the
// title, date and description. The directory is watched so edits show up
// without a restart.
package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

// ErrPostNotFound is returned for a slug with no published post.
var ErrPostNotFound = errors.New("post not found")

// Post is one blog entry, markdown already rendered.
type Post struct {
	Slug        string
	Title       string
	Description string
	Date        time.Time
	Draft       bool
	HTML        template.HTML
}

type frontMatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Date        string `yaml:"date"`
	Draft       bool   `yaml:"draft"`
}

// Store holds the loaded posts and reloads them when the directory changes.
type Store struct {
	dir    string
	logger *slog.Logger
	md     goldmark.Markdown

	mu    sync.RWMutex
	posts map[string]*Post
}

// Open loads every post under dir. A missing directory yields an empty blog,
// not an error, so deployments without one still start.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		dir:    dir,
		logger: logger,
		md:     goldmark.New(),
		posts:  map[string]*Post{},
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading blog directory: %w", err)
	}
	posts := map[string]*Post{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return err
		}
		slug := strings.TrimSuffix(name, ".md")
		p, err := s.parse(slug, data)
		if err != nil {
			// A malformed post must not take the blog down.
			s.logger.Warn("blog: skipping post", "slug", slug, "err", err)
			continue
		}
		posts[slug] = p
	}
	s.mu.Lock()
	s.posts = posts
	s.mu.Unlock()
	return nil
}

func (s *Store) parse(slug string, data []byte) (*Post, error) {
	var fm frontMatter
	body := data
	if bytes.HasPrefix(data, []byte("---\n")) {
		parts := bytes.SplitN(data[4:], []byte("\n---\n"), 2)
		if len(parts) != 2 {
			return nil, errors.New("unterminated front matter")
		}
		if err := yaml.Unmarshal(parts[0], &fm); err != nil {
			return nil, fmt.Errorf("parsing front matter: %w", err)
		}
		body = parts[1]
	}
	if fm.Title == "" {
		return nil, errors.New("missing title")
	}
	p := &Post{
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		Draft:       fm.Draft,
	}
	if fm.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", fm.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		p.Date = d
	}
	var buf bytes.Buffer
	if err := s.md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	p.HTML = template.HTML(buf.String())
	return p, nil
}

// Posts lists published posts, newest first.
func (s *Store) Posts() []*Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.Draft {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// Get returns the published post for slug.
func (s *Store) Get(slug string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[slug]
	if !ok || p.Draft {
		return nil, ErrPostNotFound
	}
	return p, nil
}

// Watch reloads the blog whenever a file in the directory changes, until ctx
// is cancelled. It returns immediately if the directory does not exist.
func (s *Store) Watch(ctx context.Context) error {
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					s.logger.Error("blog: reload failed", "err", err)
				} else {
					s.logger.Info("blog: reloaded", "file", filepath.Base(ev.Name))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Error("blog: watch error", "err", err)
			}
		}
	}()
	return nil
}
