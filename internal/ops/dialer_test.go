package ops

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/remote"
)

func TestEnsureDeviceIdentity_Stable(t *testing.T) {
	env := setup(t)
	tok := env.addToken(t, "alice", "good-a")

	first, err := EnsureDeviceIdentity(env.ctx, env.database, tok.ID, "en")
	if err != nil {
		t.Fatalf("EnsureDeviceIdentity failed: %v", err)
	}
	second, err := EnsureDeviceIdentity(env.ctx, env.database, tok.ID, "ko")
	if err != nil {
		t.Fatalf("EnsureDeviceIdentity failed: %v", err)
	}
	if first.DeviceID != second.DeviceID {
		t.Errorf("identity changed: %s != %s", first.DeviceID, second.DeviceID)
	}
}

func TestDialer_SendsStoredIdentity(t *testing.T) {
	env := setup(t)
	added := env.addToken(t, "alice", "good-a")
	ident, err := db.GetDeviceIdentity(env.ctx, env.database, added.ID)
	if err != nil || ident == nil {
		t.Fatalf("GetDeviceIdentity failed: %v", err)
	}

	var gotDevice, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice = r.Header.Get("X-Device-Info")
		gotToken = r.Header.Get("X-Token")
		_, _ = io.WriteString(w, `{"users":[]}`)
	}))
	defer srv.Close()

	client, err := remote.New(remote.Options{BaseURL: srv.URL, TokenHeader: "X-Token", Timeout: time.Second})
	if err != nil {
		t.Fatalf("remote.New failed: %v", err)
	}
	tok, err := db.GetToken(env.ctx, env.database, added.ID)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	d := &Dialer{DB: env.database, Client: client, Locale: "en"}
	api, err := d.Dial(env.ctx, *tok)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if _, err := api.Explore(env.ctx); err != nil {
		t.Fatalf("Explore failed: %v", err)
	}

	if gotToken != "good-a" {
		t.Errorf("token header = %q", gotToken)
	}
	if !strings.Contains(gotDevice, ident.DeviceID) {
		t.Errorf("device header %q does not carry %s", gotDevice, ident.DeviceID)
	}
}
