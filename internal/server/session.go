package server

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gauthierbraillon/infographic/internal/feed"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

// ErrNoSession is returned when a request carries no live session.
var ErrNoSession = errors.New("no active session")

const defaultMaxSessions = 10000

// Session is what the callback learns about a signed-in user.
type Session struct {
	ID    string
	User  feed.User
	Token *oauth.Token
}

// SessionStore keeps sessions in memory and evicts them after the TTL or when
// the store is full.
type SessionStore struct {
	cache *expirable.LRU[string, Session]
}

func NewSessionStore(size int, ttl time.Duration) *SessionStore {
	if size <= 0 {
		size = defaultMaxSessions
	}
	return &SessionStore{cache: expirable.NewLRU[string, Session](size, nil, ttl)}
}

// Create stores a new session for the user and returns it with a fresh id.
func (s *SessionStore) Create(user feed.User, token *oauth.Token) Session {
	sess := Session{ID: uuid.NewString(), User: user, Token: token}
	s.cache.Add(sess.ID, sess)
	return sess
}

func (s *SessionStore) Get(id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNoSession
	}
	sess, ok := s.cache.Get(id)
	if !ok {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *SessionStore) Delete(id string) {
	s.cache.Remove(id)
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}
