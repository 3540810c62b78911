package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mkrupp/apptemplate/internal/authclient"
	"github.com/mkrupp/apptemplate/internal/domain"
	"github.com/mkrupp/apptemplate/internal/session"
)

// fakeRemote hands out whatever session or error the test sets.
type fakeRemote struct {
	m       sync.Mutex
	session domain.Session
	err     error
}

func (f *fakeRemote) set(session domain.Session, err error) {
	f.m.Lock()
	defer f.m.Unlock()

	f.session, f.err = session, err
}

func (f *fakeRemote) fetch(context.Context) (domain.Session, error) {
	f.m.Lock()
	defer f.m.Unlock()

	return f.session, f.err
}

func alice() domain.Session {
	return domain.Session{User: &domain.User{ID: "1", Email: "alice@example.com"}}
}

func TestHookLoading(t *testing.T) {
	remote := &fakeRemote{session: alice()}
	stream := authclient.NewSessionStream(remote.fetch)
	hook := session.NewHook(stream)

	var views []session.View

	sub := hook.Subscribe(func(v session.View) { views = append(views, v) })
	defer sub.Close()

	if !hook.View().IsLoading {
		t.Fatal("view is not loading before the first resolution")
	}

	view := hook.Load(context.Background())
	if view.IsLoading || !view.Signed() || view.User.Email != "alice@example.com" {
		t.Fatalf("Load() = %+v", view)
	}

	remote.set(domain.Session{}, errors.New("offline"))
	stream.Revalidate(context.Background())

	remote.set(domain.Session{}, nil)
	stream.Revalidate(context.Background())

	if len(views) != 4 {
		t.Fatalf("got %d views, want 4", len(views))
	}

	if !views[0].IsLoading {
		t.Error("first view is not loading")
	}

	for i, v := range views[1:] {
		if v.IsLoading {
			t.Errorf("view %d re-entered loading", i+1)
		}
	}

	if views[2].Error == nil || !views[2].Signed() {
		t.Errorf("failed revalidation view = %+v, want last user with error", views[2])
	}

	if views[3].Signed() {
		t.Errorf("signed out view = %+v", views[3])
	}
}

func TestHookLoadIsIdempotent(t *testing.T) {
	calls := 0
	stream := authclient.NewSessionStream(func(context.Context) (domain.Session, error) {
		calls++

		return alice(), nil
	})
	hook := session.NewHook(stream)

	hook.Load(context.Background())
	hook.Load(context.Background())

	if calls != 1 {
		t.Errorf("fetched %d times, want 1", calls)
	}
}
