package todo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	api "github.com/omalloc/ember/api/todo"
	"github.com/omalloc/ember/storage"
)

// ErrPersistenceUnavailable is returned when the write-through to storage fails.
// The in-memory collection keeps the change.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")

const (
	DefaultKey         = "tasks"
	DefaultDeleteDelay = 500 * time.Millisecond
)

var (
	_ api.Manager      = (*Store)(nil)
	_ transport.Server = (*Store)(nil)
)

type Option func(*Store)

func WithCodec(c api.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithKey sets the storage key the collection lives under.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithDeleteDelay(d time.Duration) Option {
	return func(s *Store) { s.delay = d }
}

// WithLocale sets the collation used by Sort.
func WithLocale(tag language.Tag) Option {
	return func(s *Store) { s.locale = tag }
}

func WithLogger(logger log.Logger) Option {
	return func(s *Store) { s.log = log.NewHelper(log.With(logger, "module", "todo/store")) }
}

// WithCommitHook registers fn to run after each delayed deletion commits.
func WithCommitHook(fn api.CommitHook) Option {
	return func(s *Store) { s.hook = fn }
}

type pendingDelete struct {
	gen   uint64
	timer *time.Timer
}

// Store owns the canonical task collection and writes it through to a KV
// store after every mutation. All operations, including delayed deletion
// commits, are serialized by mu.
type Store struct {
	mu sync.Mutex

	kv     storage.KV
	codec  api.Codec
	key    string
	delay  time.Duration
	locale language.Tag
	hook   api.CommitHook
	log    *log.Helper

	collator *collate.Collator
	tasks    []api.Task
	pending  map[string]*pendingDelete
	gen      uint64
}

// New creates a Store backed by kv and loads its initial collection.
// It fails when kv cannot be read, so an unreachable store is never
// mistaken for an empty one and overwritten.
func New(kv storage.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:      kv,
		codec:   JSONCodec{},
		key:     DefaultKey,
		delay:   DefaultDeleteDelay,
		locale:  language.Und,
		log:     log.NewHelper(log.With(log.GetLogger(), "module", "todo/store")),
		pending: make(map[string]*pendingDelete),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.collator = collate.New(s.locale)
	tasks, err := s.read()
	if err != nil {
		return nil, err
	}
	s.tasks = tasks
	return s, nil
}

// Load re-reads the persisted collection. Absent or malformed data yields
// an empty collection. When storage cannot be read the in-memory collection
// is kept as is.
func (s *Store) Load() []api.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.read()
	if err != nil {
		s.log.Warnf("keeping %d tasks in memory: %v", len(s.tasks), err)
		return slices.Clone(s.tasks)
	}
	s.tasks = tasks
	return slices.Clone(s.tasks)
}

// View returns the tasks matching term together with the ids pending
// deletion, read under one lock.
func (s *Store) View(term string) api.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := matcher(term)
	tasks := make([]api.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if match(t.Text) {
			tasks = append(tasks, t)
		}
	}
	return api.Result{Tasks: tasks, Pending: s.pendingLocked()}
}

// Tasks returns a copy of the canonical collection.
func (s *Store) Tasks() []api.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.tasks)
}

// Create appends a task with the trimmed text.
func (s *Store) Create(rawText string) (api.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := strings.TrimSpace(rawText)
	if text == "" {
		return s.result(api.OutcomeValidationSkipped), nil
	}

	id := uuid.NewString()
	for s.indexOf(id) >= 0 {
		id = uuid.NewString()
	}

	s.tasks = append(s.tasks, api.Task{ID: id, Text: text})
	return s.result(api.OutcomeApplied), s.persist()
}

// Edit replaces the text of id in place.
func (s *Store) Edit(id, rawText string) (api.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return s.result(api.OutcomeNotFound), nil
	}

	text := strings.TrimSpace(rawText)
	if text == "" {
		return s.result(api.OutcomeValidationSkipped), nil
	}

	s.tasks[i].Text = text
	return s.result(api.OutcomeApplied), s.persist()
}

// Delete schedules the removal of id after the commit delay. Until then the
// task stays in memory and in storage. Deleting an id that is already
// pending restarts its delay.
func (s *Store) Delete(id string) (api.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		s.cancelLocked(id)
		return s.result(api.OutcomeNotFound), nil
	}

	s.cancelLocked(id)
	s.gen++
	gen := s.gen
	s.pending[id] = &pendingDelete{
		gen:   gen,
		timer: time.AfterFunc(s.delay, func() { s.commitDelete(id, gen) }),
	}

	s.log.Debugf("delete of task %s scheduled in %s", id, s.delay)
	return s.result(api.OutcomeDeleteScheduled), nil
}

// CancelDelete stops a pending deletion of id.
func (s *Store) CancelDelete(id string) (api.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cancelLocked(id) {
		return s.result(api.OutcomeNotFound), nil
	}
	return s.result(api.OutcomeDeleteCancelled), nil
}

// ToggleComplete flips the completed flag of id.
func (s *Store) ToggleComplete(id string) (api.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return s.result(api.OutcomeNotFound), nil
	}

	s.tasks[i].Completed = !s.tasks[i].Completed
	return s.result(api.OutcomeApplied), s.persist()
}

// Sort reorders the canonical collection by collated text. Equal texts keep
// their relative order.
func (s *Store) Sort(ascending bool) (api.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortStableFunc(s.tasks, func(a, b api.Task) int {
		c := s.collator.CompareString(a.Text, b.Text)
		if c == 0 && a.Text != b.Text {
			// texts differing only in ignorable code points
			c = strings.Compare(a.Text, b.Text)
		}
		if !ascending {
			return -c
		}
		return c
	})
	return s.result(api.OutcomeApplied), s.persist()
}

// Search returns a view of the tasks whose text contains term, ignoring case.
// Every iteration reads the collection as it is when the iteration starts.
func (s *Store) Search(term string) iter.Seq[api.Task] {
	return func(yield func(api.Task) bool) {
		s.mu.Lock()
		snapshot := slices.Clone(s.tasks)
		s.mu.Unlock()

		match := matcher(term)
		for _, t := range snapshot {
			if !match(t.Text) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Pending reports whether a deletion of id is waiting to commit.
func (s *Store) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[id]
	return ok
}

// PendingIDs returns the ids awaiting deletion in canonical order.
func (s *Store) PendingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pendingLocked()
}

func (s *Store) pendingLocked() []string {
	ids := make([]string, 0, len(s.pending))
	for _, t := range s.tasks {
		if _, ok := s.pending[t.ID]; ok {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Start implements transport.Server.
func (s *Store) Start(_ context.Context) error {
	s.mu.Lock()
	n := len(s.tasks)
	s.mu.Unlock()

	s.log.Infof("task store started with %d tasks (codec=%s key=%s)", n, s.codec.Name(), s.key)
	return nil
}

// Stop implements transport.Server. Pending deletions are dropped.
func (s *Store) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.pending {
		s.cancelLocked(id)
	}
	s.log.Infof("task store stopped")
	return nil
}

// Close stops the store and closes its storage.
func (s *Store) Close() error {
	_ = s.Stop(context.Background())
	return s.kv.Close()
}

func (s *Store) commitDelete(id string, gen uint64) {
	s.mu.Lock()

	p, ok := s.pending[id]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)

	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}

	s.tasks = slices.Delete(s.tasks, i, i+1)
	err := s.persist()
	res := s.result(api.OutcomeApplied)
	hook := s.hook
	s.mu.Unlock()

	s.log.Debugf("delete of task %s committed", id)
	if hook != nil {
		hook(res, err)
	}
}

// cancelLocked stops the pending deletion of id, if any.
func (s *Store) cancelLocked(id string) bool {
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, id)
	return true
}

// read decodes the persisted collection. Only a failed Get is an error;
// absent or malformed data is an empty collection.
func (s *Store) read() ([]api.Task, error) {
	data, err := s.kv.Get(s.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []api.Task{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}

	tasks, err := s.codec.Unmarshal(data)
	if err != nil {
		s.log.Warnf("stored %s is not valid %s, starting empty: %v", s.key, s.codec.Name(), err)
		return []api.Task{}, nil
	}
	if !wellFormed(tasks) {
		s.log.Warnf("stored %s holds malformed tasks, starting empty", s.key)
		return []api.Task{}, nil
	}
	for i := range tasks {
		tasks[i].Text = strings.TrimSpace(tasks[i].Text)
	}
	return nonNil(tasks), nil
}

func (s *Store) persist() error {
	data, err := s.codec.Marshal(s.tasks)
	if err != nil {
		return fmt.Errorf("%w: failed to encode tasks: %w", ErrPersistenceUnavailable, err)
	}
	if err := s.kv.Set(s.key, data); err != nil {
		s.log.Warnf("write-through of %d tasks failed: %v", len(s.tasks), err)
		return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	return nil
}

func (s *Store) result(o api.Outcome) api.Result {
	return api.Result{Tasks: slices.Clone(s.tasks), Outcome: o, Pending: s.pendingLocked()}
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.tasks, func(t api.Task) bool { return t.ID == id })
}
