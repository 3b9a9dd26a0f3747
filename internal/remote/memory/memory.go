// Package memory is an in-process adapter for every remote port. It backs
// local development and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"carbontrack/internal/core"
	"carbontrack/internal/remote"
)

var (
	_ remote.UsageReader = (*Store)(nil)
	_ remote.UsageWriter = (*Store)(nil)
	_ remote.AuthStore   = (*Store)(nil)
)

type Store struct {
	mu       sync.Mutex
	usage    []core.UsageRecord
	users    map[int64]core.User
	byEmail  map[string]int64
	nextID   int64
	sessions map[string]core.Session
	fetchErr error
}

// seedFile is the YAML layout of SEED_FILE.
type seedFile struct {
	Usage []core.UsageRecord `yaml:"usage"`
}

func New(usage []core.UsageRecord) *Store {
	return &Store{
		usage:    append([]core.UsageRecord(nil), usage...),
		users:    make(map[int64]core.User),
		byEmail:  make(map[string]int64),
		sessions: make(map[string]core.Session),
	}
}

// NewFromFile seeds the store from a YAML file, normalizing months to
// core.ISOLayout. A missing file yields an empty store; a malformed one is
// an error.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i := range seed.Usage {
		m, err := core.NormalizeMonth(seed.Usage[i].Month)
		if err != nil {
			return nil, fmt.Errorf("seed file %s: row %d: %w", path, i+1, err)
		}
		seed.Usage[i].Month = m
	}
	return New(seed.Usage), nil
}

// FailFetches makes FetchUsage return err until called again with nil.
func (s *Store) FailFetches(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *Store) FetchUsage(_ context.Context) ([]core.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return append([]core.UsageRecord(nil), s.usage...), nil
}

func (s *Store) InsertUsage(_ context.Context, records []core.UsageRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, records...)
	return len(records), nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return core.User{}, core.ErrEmailTaken
	}
	s.nextID++
	u.ID = s.nextID
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) SessionByToken(_ context.Context, token string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return core.Session{}, core.ErrNoSession
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
