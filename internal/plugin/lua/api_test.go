package lua

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/plugin"
)

func greeterModules(t *testing.T) (*module.Registry, *module.Object) {
	t.Helper()
	greeter := module.NewObject("Greeter").
		Set("displayName", "Greeter").
		Define("greet", func(_ any, args []any) any { return "hello " + args[0].(string) })
	store := module.NewObject("UserStore").
		Set("_dispatchToken", "ID_2").
		Define("getName", func(any, []any) any { return "UserStore" })

	reg := module.NewRegistry()
	if err := reg.Add(module.Module{ID: "1", Exports: greeter}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(module.Module{ID: "2", Exports: store}); err != nil {
		t.Fatal(err)
	}
	reg.Alias("Greeter", "1")
	return reg, greeter
}

func callGreet(t *testing.T, e *Engine, greeter *module.Object, name string) any {
	t.Helper()
	var out any
	err := e.Do(context.Background(), func() error {
		var err error
		out, err = greeter.Call("greet", name)
		return err
	})
	if err != nil {
		t.Fatalf("greet error: %v", err)
	}
	return out
}

func TestPatchHostObject(t *testing.T) {
	reg, greeter := greeterModules(t)
	e := newTestEngine(t, WithModules(reg))
	original := greeter.Method("greet")

	mustDo(t, e, `
		local G = bd.find_module_by_props("greet")
		unpatch_after = bd.patch_after("Test", G, "greet", function(self, args, ret) return string.upper(ret) end)
		bd.patch_before("Test", G, "greet", function(self, args) args[1] = args[1] .. "!" end)
	`)
	if got := callGreet(t, e, greeter, "bob"); got != "HELLO BOB!" {
		t.Errorf("patched greet = %v", got)
	}
	if n := len(e.Patcher().GetPatchesByCaller("Test")); n != 2 {
		t.Errorf("patches = %d, want 2", n)
	}

	mustDo(t, e, "unpatch_after()")
	if got := callGreet(t, e, greeter, "bob"); got != "hello bob!" {
		t.Errorf("after unpatch = %v", got)
	}

	if got := mustDo(t, e, `return bd.unpatch_all("Test")`); got != int64(1) {
		t.Errorf("unpatch_all = %v", got)
	}
	if greeter.Method("greet") != original {
		t.Error("original method should be restored")
	}
}

func TestPatchInsteadByAlias(t *testing.T) {
	reg, greeter := greeterModules(t)
	e := newTestEngine(t, WithModules(reg))

	mustDo(t, e, `
		bd.patch_instead("Test", "Greeter", "greet", function(self, args, original)
			return original(string.upper(args[1])) .. "?"
		end)
	`)
	if got := callGreet(t, e, greeter, "bob"); got != "hello BOB?" {
		t.Errorf("patched greet = %v", got)
	}
	if got := mustDo(t, e, `local G = bd.get_module("Greeter"); return G:greet("amy")`); got != "hello AMY?" {
		t.Errorf("greet from lua = %v", got)
	}

	if n := e.UnpatchAll("Test"); n != 1 {
		t.Errorf("UnpatchAll = %d, want 1", n)
	}
	if got := callGreet(t, e, greeter, "bob"); got != "hello bob" {
		t.Errorf("after unpatch = %v", got)
	}
}

func TestPatchMissingTargetIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := newTestEngine(t, WithLogger(zap.New(core).Sugar()))

	got := mustDo(t, e, `
		local un = bd.patch_before("Test", "NoSuchModule", "m", function() end)
		un()
		return type(un)
	`)
	if got != "function" {
		t.Errorf("unpatch type = %v", got)
	}
	if logs.FilterMessage("Could not patch").Len() != 1 {
		t.Errorf("expected a patch failure to be logged, got %v", logs.All())
	}
	if len(e.Patcher().Patches()) != 0 {
		t.Error("no patch should be installed")
	}
}

func TestFinders(t *testing.T) {
	reg, _ := greeterModules(t)
	e := newTestEngine(t, WithModules(reg))

	got := mustDo(t, e, `
		local store = bd.get_store("UserStore")
		return {
			store:getName(),
			bd.find_module_by_props("nothing") == nil,
			bd.get_module("Greeter") == bd.find_module_by_props("greet"),
			tostring(bd.get_module("Greeter")),
		}
	`)
	list, ok := got.([]any)
	if !ok || len(list) != 4 {
		t.Fatalf("result = %#v", got)
	}
	if list[0] != "UserStore" || list[1] != true || list[2] != true {
		t.Errorf("result = %#v", list)
	}
	if !strings.Contains(list[3].(string), "Greeter") {
		t.Errorf("tostring = %v", list[3])
	}
}

func TestDataAPI(t *testing.T) {
	files := newMemFiles()
	e := newTestEngine(t, WithDataStore(plugin.NewDataStore(files, "/BD/plugins")))

	got := mustDo(t, e, `
		bd.data_save("Foo", "settings", { a = 1, b = "two" })
		bd.data_save("Foo", "skip", nil)
		local s = bd.data_load("Foo", "settings")
		return { s.b, s.a, bd.data_load("Foo", "skip") == nil, bd.data_load("", "x") == nil }
	`)
	list, ok := got.([]any)
	if !ok || len(list) != 4 {
		t.Fatalf("result = %#v", got)
	}
	if list[0] != "two" || list[1] != int64(1) || list[2] != true || list[3] != true {
		t.Errorf("result = %#v", list)
	}

	raw, err := files.ReadFile("/BD/plugins/Foo.config.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"b": "two"`) {
		t.Errorf("data file = %s", raw)
	}
}

func TestNotices(t *testing.T) {
	notifier := plugin.NewLogNotifier(nil)
	e := newTestEngine(t, WithNotifier(notifier))

	id := mustDo(t, e, `
		bd.toast("saved")
		bd.alert("Title", "Body")
		return bd.notice("update")
	`)
	notices := notifier.Notices()
	if len(notices) != 3 {
		t.Fatalf("notices = %d, want 3", len(notices))
	}
	if notices[0].Kind != plugin.KindToast || notices[0].Content != "saved" {
		t.Errorf("toast = %+v", notices[0])
	}
	if notices[1].Kind != plugin.KindAlert || notices[1].Title != "Title" || notices[1].Buttons[0] != "Okay" {
		t.Errorf("alert = %+v", notices[1])
	}
	if notices[2].ID != id {
		t.Errorf("notice id = %v, want %s", id, notices[2].ID)
	}
}

func TestLogFunctionsAndRequire(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := newTestEngine(t, WithLogger(zap.New(core).Sugar()))

	mustDo(t, e, `
		local api = require("bd")
		api.log("one", 1)
		bd.warn("two")
		bd.error("three")
	`)
	entries := logs.FilterLoggerName("plugin").All()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Message != "one\t1" || entries[1].Level != zapcore.WarnLevel || entries[2].Level != zapcore.ErrorLevel {
		t.Errorf("entries = %v", entries)
	}
}
