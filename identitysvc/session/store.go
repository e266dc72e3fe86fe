package session

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	consul "github.com/hashicorp/consul/api"
	"github.com/ichigozero/sicatat/identitysvc"
)

// Store persists the signed-in user of each session.
type Store interface {
	Get(id string) (identitysvc.User, error)
	Put(id string, u identitysvc.User) error
	Delete(id string) error
}

var ErrSessionNotFound = errors.New("session not found")

type memoryStore struct {
	mu    sync.RWMutex
	users map[string]identitysvc.User
}

func NewMemoryStore() Store {
	return &memoryStore{users: make(map[string]identitysvc.User)}
}

func (s *memoryStore) Get(id string) (identitysvc.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return identitysvc.User{}, ErrSessionNotFound
	}
	return u, nil
}

func (s *memoryStore) Put(id string, u identitysvc.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[id] = u
	return nil
}

func (s *memoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	return nil
}

// KV is the part of the consul KV API the consul store needs. *consul.KV
// satisfies it.
type KV interface {
	Get(key string, q *consul.QueryOptions) (*consul.KVPair, *consul.QueryMeta, error)
	Put(p *consul.KVPair, q *consul.WriteOptions) (*consul.WriteMeta, error)
	Delete(key string, w *consul.WriteOptions) (*consul.WriteMeta, error)
}

type consulStore struct {
	kv     KV
	prefix string
}

// NewConsulStore keeps sessions in consul's KV store under prefix, so that
// several web front instances share them.
func NewConsulStore(kv KV, prefix string) Store {
	return &consulStore{kv, prefix}
}

func (s *consulStore) key(id string) string {
	return s.prefix + id
}

func (s *consulStore) Get(id string) (identitysvc.User, error) {
	kv, _, err := s.kv.Get(s.key(id), nil)
	if err != nil {
		return identitysvc.User{}, err
	}

	if kv == nil {
		return identitysvc.User{}, ErrSessionNotFound
	}

	var u identitysvc.User
	if err := json.Unmarshal(kv.Value, &u); err != nil {
		return identitysvc.User{}, err
	}
	return u, nil
}

func (s *consulStore) Put(id string, u identitysvc.User) error {
	value, err := json.Marshal(u)
	if err != nil {
		return err
	}

	p := &consul.KVPair{Key: s.key(id), Value: value}
	_, err = s.kv.Put(p, nil)

	return err
}

func (s *consulStore) Delete(id string) error {
	_, err := s.kv.Delete(s.key(id), nil)

	return err
}

type fileStore struct {
	dir string
}

// NewFileStore keeps one JSON file per session in dir. The directory is
// created with mode 0700 on first write.
func NewFileStore(dir string) Store {
	return &fileStore{dir}
}

func (s *fileStore) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}

func (s *fileStore) Get(id string) (identitysvc.User, error) {
	b, err := ioutil.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return identitysvc.User{}, ErrSessionNotFound
	}
	if err != nil {
		return identitysvc.User{}, err
	}

	var u identitysvc.User
	if err := json.Unmarshal(b, &u); err != nil {
		return identitysvc.User{}, err
	}
	return u, nil
}

func (s *fileStore) Put(id string, u identitysvc.User) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(s.path(id), b, 0600)
}

func (s *fileStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
