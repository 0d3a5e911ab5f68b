package lua

import (
	"reflect"
	"testing"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/bdcompat/internal/module"
)

func newTestBridge(t *testing.T) (*glua.LState, *bridge) {
	t.Helper()
	L := newState(zap.NewNop().Sugar())
	t.Cleanup(L.Close)
	return L, newBridge(L)
}

func TestBridgeToGo(t *testing.T) {
	L, b := newTestBridge(t)

	if err := L.DoString(`
		seq = { 1, "two", true }
		rec = { x = 1.5, y = { 3 } }
		cyc = {}
		cyc.self = cyc
	`); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   glua.LValue
		want any
	}{
		{"nil", glua.LNil, nil},
		{"integer", glua.LNumber(3), int64(3)},
		{"float", glua.LNumber(2.5), 2.5},
		{"string", glua.LString("s"), "s"},
		{"sequence", L.GetGlobal("seq"), []any{int64(1), "two", true}},
		{"record", L.GetGlobal("rec"), map[string]any{"x": 1.5, "y": []any{int64(3)}}},
		{"cycle", L.GetGlobal("cyc"), map[string]any{"self": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ToGo(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToGo() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBridgeRoundTripsCollections(t *testing.T) {
	_, b := newTestBridge(t)

	in := map[string]any{"list": []any{int64(1), "a"}, "n": int64(7)}
	if got := b.ToGo(b.ToLua(in)); !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %#v", got)
	}
	if got := b.ToGo(b.ToLua([]string{"a", "b"})); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Errorf("[]string = %#v", got)
	}
}

func TestBridgeHostObject(t *testing.T) {
	L, b := newTestBridge(t)

	obj := module.NewObject("Thing").
		Set("size", 2).
		Define("double", func(this any, args []any) any {
			return args[0].(int64) * 2
		})
	ud := b.ToLua(obj)
	if b.ToLua(obj) != ud {
		t.Error("a host object should map to the same userdata every time")
	}
	L.SetGlobal("thing", ud)

	if err := L.DoString(`
		result = thing:double(thing.size)
		thing.label = "x"
		thing.triple = function(self, n) return n * 3 end
	`); err != nil {
		t.Fatal(err)
	}
	if got := b.ToGo(L.GetGlobal("result")); got != int64(4) {
		t.Errorf("double = %v", got)
	}
	if v, _ := obj.Get("label"); v != "x" {
		t.Errorf("label = %v", v)
	}
	got, err := obj.Call("triple", 5)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(15) {
		t.Errorf("triple = %v", got)
	}
	if b.ToGo(ud) != obj {
		t.Error("userdata should convert back to the host object")
	}
}

func TestBridgeMethodIdentity(t *testing.T) {
	L, b := newTestBridge(t)
	if err := L.DoString(`function f() end`); err != nil {
		t.Fatal(err)
	}
	fn := L.GetGlobal("f").(*glua.LFunction)

	m := b.method(fn)
	if b.method(fn) != m {
		t.Error("a Lua function should map to the same method every time")
	}
	if b.function(m) != fn {
		t.Error("the method should map back to the Lua function")
	}
}
