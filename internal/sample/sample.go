// Package sample seeds the store from YAML fixture files so a fresh install
// has something to write against. Each fixture file describes one book with
// its chapters and personas.
package sample

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/inkwell-ai/inkwell/internal/logging"
	"github.com/inkwell-ai/inkwell/internal/store"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// bookFixture is the YAML shape of one fixture file.
type bookFixture struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`

	Chapters []struct {
		Title   string `yaml:"title"`
		Number  int    `yaml:"number"`
		Content string `yaml:"content"`
	} `yaml:"chapters"`

	Personas []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Traits      string `yaml:"traits"`
	} `yaml:"personas"`
}

// Loader seeds and optionally live-reloads fixture data.
type Loader struct {
	store *store.Store
	dir   string
	log   zerolog.Logger

	mu    sync.Mutex
	books map[string]int // fixture path -> book id

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewLoader creates a loader over the given fixture directory.
func NewLoader(st *store.Store, dir string) *Loader {
	return &Loader{
		store: st,
		dir:   dir,
		log:   logging.For("sample"),
		books: make(map[string]int),
	}
}

// Load seeds the store from the fixture directory. It is a no-op when the
// directory does not exist or the store already holds books, so user data is
// never mixed with samples.
func (l *Loader) Load(ctx context.Context) error {
	paths, err := l.fixturePaths()
	if err != nil || len(paths) == 0 {
		return err
	}

	books, err := l.store.ListBooks(ctx)
	if err != nil {
		return err
	}
	if len(books) > 0 {
		l.log.Debug().Int("books", len(books)).Msg("store not empty, skipping sample data")
		return nil
	}

	for _, path := range paths {
		if err := l.loadFile(ctx, path); err != nil {
			return fmt.Errorf("failed to load sample %s: %w", filepath.Base(path), err)
		}
	}
	l.log.Info().Int("fixtures", len(paths)).Msg("sample data loaded")
	return nil
}

func (l *Loader) fixturePaths() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isFixture(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isFixture(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// loadFile creates the fixture's book, chapters, and personas. A book loaded
// earlier from the same path is replaced.
func (l *Loader) loadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fx bookFixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return err
	}
	if strings.TrimSpace(fx.Title) == "" {
		return fmt.Errorf("fixture has no title")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if oldID, ok := l.books[path]; ok {
		if err := l.store.DeleteBook(ctx, oldID); err != nil && err != store.ErrNotFound {
			return err
		}
	}

	book := &types.Book{Title: fx.Title, Author: fx.Author, Description: fx.Description}
	if err := l.store.CreateBook(ctx, book); err != nil {
		return err
	}
	l.books[path] = book.ID

	for _, c := range fx.Chapters {
		ch := &types.Chapter{BookID: book.ID, Title: c.Title, Number: c.Number, Content: c.Content}
		if err := l.store.CreateChapter(ctx, ch); err != nil {
			return err
		}
	}
	for _, p := range fx.Personas {
		persona := &types.Persona{BookID: book.ID, Name: p.Name, Description: p.Description, Traits: p.Traits}
		if err := l.store.CreatePersona(ctx, persona); err != nil {
			return err
		}
	}

	l.log.Debug().Str("book", fx.Title).Int("chapters", len(fx.Chapters)).Int("personas", len(fx.Personas)).Msg("fixture loaded")
	return nil
}

// Watch reloads a fixture file whenever it changes on disk. Intended for
// development mode; changed fixtures replace the book they created earlier.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return err
	}

	l.watcher = w
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.started = true
	go l.run()

	l.log.Info().Str("dir", l.dir).Msg("watching sample fixtures")
	return nil
}

func (l *Loader) run() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isFixture(ev.Name) {
				continue
			}
			if err := l.loadFile(context.Background(), ev.Name); err != nil {
				l.log.Error().Err(err).Str("path", ev.Name).Msg("failed to reload fixture")
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Error().Err(err).Msg("sample watcher error")
		}
	}
}

// Stop stops the watcher, if one was started.
func (l *Loader) Stop() error {
	if !l.started {
		return nil
	}

	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	<-l.doneCh
	return l.watcher.Close()
}
