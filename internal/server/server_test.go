package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauthierbraillon/infographic/internal/feed"
	"github.com/gauthierbraillon/infographic/internal/statistics"
	"github.com/gauthierbraillon/infographic/internal/store"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var owner = feed.User{ID: 1, Name: "Owner"}

type fakeAuth struct {
	state    string
	token    *oauth.Token
	err      error
	gotCodes []string
}

func (f *fakeAuth) GenerateAuthURL() (string, string) {
	return "https://www.facebook.com/dialog/oauth?state=" + f.state, f.state
}

func (f *fakeAuth) ExchangeCode(_ context.Context, code string) (*oauth.Token, error) {
	f.gotCodes = append(f.gotCodes, code)
	return f.token, f.err
}

type fakeClient struct {
	user       feed.User
	posts      []feed.Post
	profileErr error
	feedErr    error
	gotLimit   int
}

func (f *fakeClient) FetchProfile(context.Context) (feed.User, error) {
	return f.user, f.profileErr
}

func (f *fakeClient) FetchFeed(_ context.Context, limit int) ([]feed.Post, error) {
	f.gotLimit = limit
	return f.posts, f.feedErr
}

type memoryHistory struct {
	mu    sync.Mutex
	snaps []store.Snapshot
	err   error
}

func (m *memoryHistory) Save(_ context.Context, snap store.Snapshot) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return store.Snapshot{}, m.err
	}
	snap.ID = int64(len(m.snaps) + 1)
	m.snaps = append(m.snaps, snap)
	return snap, nil
}

func (m *memoryHistory) List(_ context.Context, ownerID int64, limit int) ([]store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Snapshot, 0)
	for i := len(m.snaps) - 1; i >= 0 && len(out) < limit; i-- {
		if m.snaps[i].OwnerID == ownerID {
			out = append(out, m.snaps[i])
		}
	}
	return out, nil
}

type fixture struct {
	server   *Server
	router   *gin.Engine
	auth     *fakeAuth
	client   *fakeClient
	sessions *SessionStore
	history  *memoryHistory
}

func newFixture(t *testing.T, posts []feed.Post) *fixture {
	t.Helper()
	f := &fixture{
		auth:     &fakeAuth{state: "state-123", token: &oauth.Token{AccessToken: "access-token"}},
		client:   &fakeClient{user: owner, posts: posts},
		sessions: NewSessionStore(10, time.Minute),
		history:  &memoryHistory{},
	}
	f.server = New(f.auth, func(*oauth.Token) FeedClient { return f.client }, statistics.NewEngine(),
		WithSessions(f.sessions), WithHistory(f.history), WithFeedLimit(50), WithVersion("1.2.3"))
	f.router = f.server.Router()
	return f
}

func (f *fixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	sess := f.sessions.Create(owner, &oauth.Token{AccessToken: "access-token"})
	return &http.Cookie{Name: SessionCookie, Value: sess.ID}
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func ownPosts() []feed.Post {
	o := owner
	created := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return []feed.Post{
		{ID: "1", Type: feed.PostTypeStatus, Author: &o, CreatedAt: &created,
			Message: "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar",
			Likes:   []feed.User{{ID: 2, Name: "Alice"}, {ID: 3, Name: "Bob"}, {ID: 4, Name: "Carol"}, {ID: 5, Name: "Dave"}}},
	}
}

func TestLogin_RedirectsToProviderWithStateCookie(t *testing.T) {
	f := newFixture(t, nil)

	w := f.get("/login")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "www.facebook.com/dialog/oauth")
	state := cookie(w, StateCookie)
	require.NotNil(t, state, "login should set a state cookie")
	assert.Equal(t, "state-123", state.Value)
	assert.True(t, state.HttpOnly)
}

func TestCallback_StartsSession(t *testing.T) {
	f := newFixture(t, nil)

	w := f.get("/callback?code=auth-code&state=state-123", &http.Cookie{Name: StateCookie, Value: "state-123"})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, SuccessPath, w.Header().Get("Location"))
	assert.Equal(t, []string{"auth-code"}, f.auth.gotCodes)

	sessCookie := cookie(w, SessionCookie)
	require.NotNil(t, sessCookie, "callback should set a session cookie")
	sess, err := f.sessions.Get(sessCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, owner, sess.User)
	assert.Equal(t, "access-token", sess.Token.AccessToken)
}

func TestCallback_FailuresRedirectToErrorPage(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		state string
		setup func(f *fixture)
	}{
		{"provider error", "/callback?error=access_denied&error_description=Permissions+error&state=state-123", "state-123", nil},
		{"no code", "/callback?state=state-123", "state-123", nil},
		{"state mismatch", "/callback?code=c&state=forged", "state-123", nil},
		{"missing state cookie", "/callback?code=c&state=state-123", "", nil},
		{"token exchange fails", "/callback?code=c&state=state-123", "state-123", func(f *fixture) {
			f.auth.err = errors.New("invalid_grant")
		}},
		{"profile fails", "/callback?code=c&state=state-123", "state-123", func(f *fixture) {
			f.client.profileErr = errors.New("authentication failed")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.setup != nil {
				tt.setup(f)
			}
			var cookies []*http.Cookie
			if tt.state != "" {
				cookies = append(cookies, &http.Cookie{Name: StateCookie, Value: tt.state})
			}

			w := f.get(tt.path, cookies...)

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, FailurePath, w.Header().Get("Location"))
			assert.Nil(t, cookie(w, SessionCookie))
			assert.Zero(t, f.sessions.Len())
		})
	}
}

func TestStatistics_RequiresSession(t *testing.T) {
	f := newFixture(t, ownPosts())

	w := f.get("/statistics")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.get("/statistics", &http.Cookie{Name: SessionCookie, Value: "expired"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatistics_ReturnsEnvelopeAndSavesHistory(t *testing.T) {
	f := newFixture(t, ownPosts())

	w := f.get("/statistics", f.signIn(t))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, f.client.gotLimit)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	for _, kind := range statistics.Kinds {
		assert.Contains(t, decoded, string(kind))
	}
	assert.Contains(t, string(decoded["TOP_FRIENDS"]), `"name":"Alice"`)

	require.Len(t, f.history.snaps, 1)
	snap := f.history.snaps[0]
	assert.Equal(t, owner.ID, snap.OwnerID)
	assert.Equal(t, 1, snap.PostCount)
	assert.JSONEq(t, w.Body.String(), string(snap.Envelope))
}

func TestStatistics_EmptyFeedReturnsEmptyObject(t *testing.T) {
	f := newFixture(t, []feed.Post{})

	w := f.get("/statistics", f.signIn(t))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{}", w.Body.String())
	assert.Empty(t, f.history.snaps, "empty results should not be saved")
}

func TestStatistics_FeedErrorIsBadGateway(t *testing.T) {
	f := newFixture(t, nil)
	f.client.feedErr = errors.New("Facebook API rate limit exceeded - please try again later")

	w := f.get("/statistics", f.signIn(t))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit")
}

func TestStatistics_HistoryFailureStillServesEnvelope(t *testing.T) {
	f := newFixture(t, ownPosts())
	f.history.err = errors.New("disk full")

	w := f.get("/statistics", f.signIn(t))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHistory_ListsOwnSnapshots(t *testing.T) {
	f := newFixture(t, ownPosts())
	signedIn := f.signIn(t)
	f.get("/statistics", signedIn)
	f.get("/statistics", signedIn)
	_, _ = f.history.Save(context.Background(), store.Snapshot{OwnerID: 99, Envelope: json.RawMessage(`{}`)})

	w := f.get("/history?limit=5", signedIn)

	require.Equal(t, http.StatusOK, w.Code)
	var snaps []store.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	assert.Len(t, snaps, 2)

	w = f.get("/history?limit=zero", signedIn)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_EndsSession(t *testing.T) {
	f := newFixture(t, ownPosts())
	signedIn := f.signIn(t)

	w := f.get("/logout", signedIn)
	assert.Equal(t, http.StatusFound, w.Code)

	w = f.get("/statistics", signedIn)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	w := f.get("/health")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"infographic","version":"1.2.3","sessions":0}`, w.Body.String())
}

func TestMetrics_CountsStatisticsOutcomes(t *testing.T) {
	f := newFixture(t, ownPosts())
	f.get("/statistics", f.signIn(t))

	w := f.get("/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `infographic_statistics_total{kind="TOP_FRIENDS",outcome="ok"} 1`)
	assert.Contains(t, body, `infographic_http_requests_total{endpoint="/statistics",method="GET",status="200"} 1`)
	assert.Contains(t, body, `infographic_build_info{version="1.2.3"} 1`)
	assert.Contains(t, body, "infographic_active_sessions 1")
}

func TestRun_StopsWhenContextIsCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server should stop when its context is cancelled")
	}
}

func TestSessionStore_Expires(t *testing.T) {
	sessions := NewSessionStore(10, 20*time.Millisecond)
	sess := sessions.Create(owner, &oauth.Token{AccessToken: "t"})

	_, err := sessions.Get(sess.ID)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	_, err = sessions.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}
