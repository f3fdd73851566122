package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haleyrc/workdriver/internal/config"
)

func TestWebhookSend(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Workdriver-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: "s3cret"})
	if !ch.IsConfigured() {
		t.Fatal("channel with URL should report configured")
	}

	err := ch.Send(context.Background(), Event{
		Title:   "Work Driver",
		Body:    "2 PRs need attention",
		PRCount: 2,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["body"] != "2 PRs need attention" {
		t.Errorf("unexpected payload body %v", payload["body"])
	}
	if payload["pr_count"].(float64) != 2 {
		t.Errorf("unexpected pr_count %v", payload["pr_count"])
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature mismatch: got %q want %q", gotSig, want)
	}
}

func TestWebhookSendUnsignedWithoutSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Workdriver-Signature")
	}))
	defer srv.Close()

	ch := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL})
	if err := ch.Send(context.Background(), Event{Title: "t"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotSig != "" {
		t.Errorf("expected no signature header, got %q", gotSig)
	}
}

func TestWebhookSendReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL})
	err := ch.Send(context.Background(), Event{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestDispatcherNotify(t *testing.T) {
	if (NewWebhook(config.WebhookNotifyConfig{})).IsConfigured() {
		t.Fatal("webhook without URL should not report configured")
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	d := &Dispatcher{channels: []Channel{
		NewWebhook(config.WebhookNotifyConfig{URL: srv.URL}),
	}}
	if !d.IsAnyConfigured() {
		t.Fatal("dispatcher with a live channel should report configured")
	}

	// Notify never returns an error; failing channels only log.
	d.Notify(context.Background(), Event{Title: "t"})
	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}
}
