package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/config"
)

func TestPushoverSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		got = map[string]string{}
		for k := range r.PostForm {
			got[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":1,"request":"abc"}`))
	}))
	defer srv.Close()

	p := NewPushover(config.PushoverConfig{Token: "tok", User: "usr"})
	p.endpoint = srv.URL

	err := p.Send(context.Background(), Message{Title: "T", Body: "hello", URL: "https://x.test", Priority: 1})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := map[string]string{
		"token":    "tok",
		"user":     "usr",
		"message":  "hello",
		"title":    "T",
		"url":      "https://x.test",
		"priority": "1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestPushoverSendErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{"api error list", http.StatusBadRequest, `{"status":0,"errors":["user identifier is invalid"]}`, "user identifier is invalid"},
		{"status zero on 200", http.StatusOK, `{"status":0}`, "HTTP 200"},
		{"server error", http.StatusInternalServerError, `oops`, "HTTP 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewPushover(config.PushoverConfig{Token: "t", User: "u"})
			p.endpoint = srv.URL
			err := p.Send(context.Background(), Message{Body: "x"})
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %v, want containing %q", err, tt.wantSub)
			}
		})
	}
}
