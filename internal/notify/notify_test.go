package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

type fakeNotifier struct {
	name string
	err  error
	got  []Message
}

func (f *fakeNotifier) Name() string { return f.name }
func (f *fakeNotifier) Send(_ context.Context, msg Message) error {
	f.got = append(f.got, msg)
	return f.err
}

func TestDispatcherSend(t *testing.T) {
	tests := []struct {
		name      string
		notifiers []*fakeNotifier
		want      []string
		wantErr   bool
	}{
		{
			name:    "none configured",
			wantErr: true,
		},
		{
			name:      "all succeed",
			notifiers: []*fakeNotifier{{name: "pushover"}, {name: "mqtt"}},
			want:      []string{"pushover", "mqtt"},
		},
		{
			name:      "partial failure still delivers",
			notifiers: []*fakeNotifier{{name: "pushover", err: errors.New("down")}, {name: "email"}},
			want:      []string{"email"},
		},
		{
			name:      "all fail",
			notifiers: []*fakeNotifier{{name: "pushover", err: errors.New("down")}, {name: "email", err: errors.New("smtp")}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(nil, nil)
			for _, n := range tt.notifiers {
				d.Add(n)
			}
			got, err := d.Send(context.Background(), Message{Body: "hi"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Send() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Send() error: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("delivered = %v, want %v", got, tt.want)
			}
			for _, n := range tt.notifiers {
				if len(n.got) != 1 {
					t.Errorf("%s received %d messages, want 1", n.name, len(n.got))
				}
			}
		})
	}
}

func TestDispatcherSendNotConfigured(t *testing.T) {
	_, err := NewDispatcher(nil, nil).Send(context.Background(), Message{Body: "x"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestDispatcherEmitsEvents(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(8)
	defer bus.Unsubscribe(ch)

	d := NewDispatcher(bus, nil)
	d.Add(&fakeNotifier{name: "pushover"})
	if _, err := d.Send(context.Background(), Message{Body: "x", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}

	e := <-ch
	if e.Source != events.SourceNotify || e.Kind != events.KindNotifySent {
		t.Fatalf("event = %s/%s", e.Source, e.Kind)
	}
	if e.Data["channel"] != "pushover" || e.Data["ok"] != true || e.Data["session_id"] != "s1" {
		t.Errorf("event data = %v", e.Data)
	}
}

func TestRegisterTool(t *testing.T) {
	t.Run("skipped without channels", func(t *testing.T) {
		r := tools.NewEmptyRegistry()
		Register(r, NewDispatcher(nil, nil))
		if r.Get("send_push_notification") != nil {
			t.Error("tool registered with no channels")
		}
	})

	t.Run("sends with session id", func(t *testing.T) {
		fake := &fakeNotifier{name: "pushover"}
		d := NewDispatcher(nil, nil)
		d.Add(fake)
		r := tools.NewEmptyRegistry()
		Register(r, d)

		ctx := tools.WithRunScope(context.Background(), tools.RunScope{SessionID: "abc"})
		out, err := r.Execute(ctx, "send_push_notification", `{"text":"done","title":"Task"}`)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if out != "Notification sent via pushover" {
			t.Errorf("output = %q", out)
		}
		if len(fake.got) != 1 {
			t.Fatalf("got %d messages", len(fake.got))
		}
		if m := fake.got[0]; m.Body != "done" || m.Title != "Task" || m.SessionID != "abc" {
			t.Errorf("message = %+v", m)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		d := NewDispatcher(nil, nil)
		d.Add(&fakeNotifier{name: "pushover"})
		r := tools.NewEmptyRegistry()
		Register(r, d)
		if _, err := r.Execute(context.Background(), "send_push_notification", `{"text":"  "}`); err == nil {
			t.Error("expected error for empty text")
		}
	})
}
