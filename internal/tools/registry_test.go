package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&funcTool{
		name:        "echo",
		description: "echoes its arguments",
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			return string(args), nil
		},
	})

	result, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != `{"a":1}` {
		t.Errorf("result = %v", result)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "missing", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("got %v, want ErrUnknownTool", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	r.RegisterAll(
		&funcTool{name: "zeta"},
		&funcTool{name: "alpha"},
		&funcTool{name: "mid"},
	)

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("got %d tools, want 3", len(list))
	}
	if list[0].Name != "alpha" || list[2].Name != "zeta" {
		t.Errorf("list not sorted: %v", list)
	}
}

func TestBuiltinToolNames(t *testing.T) {
	r := NewRegistry()
	r.RegisterAll(BuiltinTools(Deps{})...)

	want := []string{
		"cancel_order", "close_position", "get_account_state", "get_economic_news",
		"get_instruments", "get_market_data", "get_orders", "get_positions",
		"list_accounts", "place_order",
	}
	list := r.List()
	if len(list) != len(want) {
		t.Fatalf("got %d tools, want %d", len(list), len(want))
	}
	for i, d := range list {
		if d.Name != want[i] {
			t.Errorf("tool[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
}
