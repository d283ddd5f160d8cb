package ops

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/remote"
)

// testEnv is a database plus a fake platform that accepts tokens starting with "good".
type testEnv struct {
	ctx      context.Context
	database *sql.DB
	client   *remote.Client
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("X-Token")
		switch {
		case r.URL.Path != "/user/v1/me":
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(tok, "good"):
			_, _ = io.WriteString(w, `{"user":{"_id":"remote-`+tok+`","name":"Profile `+tok+`"}}`)
		case strings.HasPrefix(tok, "down"):
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"errorCode":"AuthRequired"}`)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := remote.New(remote.Options{BaseURL: srv.URL, TokenHeader: "X-Token", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("remote.New failed: %v", err)
	}
	return &testEnv{ctx: context.Background(), database: database, client: client}
}

func (e *testEnv) addToken(t *testing.T, owner, value string) *AddTokenOutput {
	t.Helper()
	out, err := AddToken(e.ctx, e.database, e.client, AddTokenInput{Owner: owner, Value: value})
	if err != nil {
		t.Fatalf("AddToken(%s) failed: %v", value, err)
	}
	return out
}

func TestGenerateULID(t *testing.T) {
	a, err := generateULID()
	if err != nil {
		t.Fatalf("generateULID failed: %v", err)
	}
	b, _ := generateULID()
	if len(a) != 26 {
		t.Errorf("len = %d, want 26", len(a))
	}
	if a == b {
		t.Error("two ULIDs are equal")
	}
}

func TestRequireID(t *testing.T) {
	if _, err := requireID("id", "  "); err == nil {
		t.Error("expected error for blank id")
	}
	id, err := requireID("id", " 01ABC ")
	if err != nil || id != "01ABC" {
		t.Errorf("requireID = %q, %v", id, err)
	}
}
