package plugin

import (
	"context"
	"errors"
	"testing"
)

type countingPlugin struct {
	name    string
	started bool
	starts  int
	stops   int
}

func (p *countingPlugin) Name() string  { return p.name }
func (p *countingPlugin) Started() bool { return p.started }

func (p *countingPlugin) Start(context.Context) error {
	p.starts++
	p.started = true
	return nil
}

func (p *countingPlugin) Stop(context.Context) error {
	p.stops++
	p.started = false
	return nil
}

func TestMemRegistry(t *testing.T) {
	reg := NewMemRegistry()
	ctx := context.Background()
	p := &countingPlugin{name: "native"}

	if err := reg.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(&countingPlugin{name: "native"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate Register() error = %v", err)
	}

	if err := reg.Start(ctx, "native"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Start(ctx, "native"); err != nil {
		t.Fatal(err)
	}
	if p.starts != 1 {
		t.Errorf("starts = %d, want 1", p.starts)
	}
	if !reg.IsStarted("native") {
		t.Error("IsStarted() = false")
	}

	if err := reg.Stop(ctx, "native"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Stop(ctx, "native"); err != nil {
		t.Fatal(err)
	}
	if p.stops != 1 {
		t.Errorf("stops = %d, want 1", p.stops)
	}

	if err := reg.SetEnabled("native", true); err != nil || !reg.IsEnabled("native") {
		t.Errorf("SetEnabled() = %v, IsEnabled = %v", err, reg.IsEnabled("native"))
	}
	if err := reg.SetEnabled("ghost", true); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("SetEnabled(ghost) error = %v", err)
	}
	if err := reg.Start(ctx, "ghost"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Start(ghost) error = %v", err)
	}

	if err := reg.Register(&countingPlugin{name: "another"}); err != nil {
		t.Fatal(err)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "another" {
		t.Errorf("Names() = %v", names)
	}
	if !reg.Unregister("native") || reg.Unregister("native") {
		t.Error("Unregister() should succeed once")
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)

	id := n.Notify(Notice{Kind: KindToast, Content: "hello"})
	if id == "" {
		t.Fatal("Notify() returned an empty id")
	}
	n.Notify(Notice{ID: "fixed", Kind: KindAlert, Title: "Alert", Content: "careful"})

	notices := n.Notices()
	if len(notices) != 2 || notices[0].ID != id || notices[1].ID != "fixed" {
		t.Fatalf("Notices() = %+v", notices)
	}
	if notices[0].Created.IsZero() {
		t.Error("Created not set")
	}

	if !n.Dismiss(id) || n.Dismiss(id) {
		t.Error("Dismiss() should succeed once")
	}
	if len(n.Notices()) != 1 {
		t.Errorf("Notices() after Dismiss = %d", len(n.Notices()))
	}
}

func TestStateIsLive(t *testing.T) {
	live := map[State]bool{
		StateUnloaded:   false,
		StateConverted:  false,
		StateRegistered: true,
		StateStarted:    true,
		StateStopped:    true,
		StateError:      true,
		StateRemoved:    false,
	}
	for s, want := range live {
		if got := s.IsLive(); got != want {
			t.Errorf("%v.IsLive() = %v, want %v", s, got, want)
		}
	}
}
