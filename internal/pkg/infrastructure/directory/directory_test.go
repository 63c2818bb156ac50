package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"})
	return NewClient(ts.URL, tokens, time.Second, logging.NewNopLogger())
}

func TestThatIsMemberReadsTheDirectoryAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/groups/sign-ms@school.org/hasMember/teacher@school.org" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"isMember": true}`))
	})

	member, err := client.IsMember(context.Background(), "sign-ms@school.org", "teacher@school.org")
	if err != nil || !member {
		t.Errorf("expected membership, got %v, %v", member, err)
	}
}

func TestThatUnknownMemberIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	member, err := client.IsMember(context.Background(), "sign-ms@school.org", "visitor@school.org")
	if err != nil || member {
		t.Errorf("expected a plain no, got %v, %v", member, err)
	}
}

func TestThatAuthFailuresAreErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.IsMember(context.Background(), "sign-ms@school.org", "teacher@school.org")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected a 403 error, got %v", err)
	}
}

func TestThatNewTokenSourceRequiresCredentials(t *testing.T) {
	if _, err := NewTokenSource(context.Background(), "", "", ""); err != ErrNoCredentials {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}

	ts, err := NewTokenSource(context.Background(), "", "", "static")
	if err != nil {
		t.Fatal(err)
	}
	token, _ := ts.Token()
	if token.AccessToken != "static" {
		t.Errorf("unexpected token %q", token.AccessToken)
	}
}
