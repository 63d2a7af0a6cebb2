package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryContextNotifiesOnlyOtherContexts(t *testing.T) {
	area := NewMemoryArea()
	popup := area.Context("popup")
	sidepanel := area.Context("sidepanel")

	var popupChanges, sidepanelChanges []map[string]Change
	stopPopup, err := popup.Watch(func(changes map[string]Change) { popupChanges = append(popupChanges, changes) })
	if err != nil {
		t.Fatalf("watch popup: %v", err)
	}
	defer stopPopup()
	stopSidepanel, err := sidepanel.Watch(func(changes map[string]Change) { sidepanelChanges = append(sidepanelChanges, changes) })
	if err != nil {
		t.Fatalf("watch sidepanel: %v", err)
	}

	ctx := context.Background()
	if err := popup.Set(ctx, map[string]json.RawMessage{"recentColors": json.RawMessage(`["#fff"]`)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(popupChanges) != 0 {
		t.Fatalf("writer context must not observe its own write")
	}
	if len(sidepanelChanges) != 1 {
		t.Fatalf("expected one change batch, got %d", len(sidepanelChanges))
	}
	change := sidepanelChanges[0]["recentColors"]
	if change.OldValue != nil || string(change.NewValue) != `["#fff"]` {
		t.Fatalf("unexpected change %+v", change)
	}

	if err := popup.Set(ctx, map[string]json.RawMessage{"recentColors": json.RawMessage(`["#fff"]`)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(sidepanelChanges) != 1 {
		t.Fatalf("rewriting an identical value must not notify")
	}

	if err := sidepanel.Remove(ctx, []string{"recentColors", "missing"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(popupChanges) != 1 || popupChanges[0]["recentColors"].NewValue != nil {
		t.Fatalf("expected removal change, got %+v", popupChanges)
	}

	stopSidepanel()
	stopSidepanel()
	if err := popup.Set(ctx, map[string]json.RawMessage{"groups": json.RawMessage(`[]`)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(sidepanelChanges) != 1 {
		t.Fatalf("stopped watcher must not be notified")
	}
}

func TestMemoryContextReturnsCopies(t *testing.T) {
	view := NewMemoryArea().Context("server")
	ctx := context.Background()
	original := json.RawMessage(`{"a":1}`)
	if err := view.Set(ctx, map[string]json.RawMessage{"globalSettings": original}); err != nil {
		t.Fatalf("set: %v", err)
	}
	original[2] = 'b'

	values, err := view.Get(ctx, []string{"globalSettings", "groups"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(values["globalSettings"]) != `{"a":1}` {
		t.Fatalf("stored value was aliased: %s", values["globalSettings"])
	}
	if _, exists := values["groups"]; exists {
		t.Fatalf("missing key must be absent")
	}
}

func TestUnavailableStore(t *testing.T) {
	var store Store = Unavailable{}
	if _, err := store.Get(context.Background(), []string{"groups"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Set(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.Watch(func(map[string]Change) {}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
