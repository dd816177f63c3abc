package resource

import (
	"errors"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert(1, "test")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok || val != "test" {
		t.Fatalf("Get = %v, %v; want test, true", val, ok)
	}

	if _, ok := table.GetTyped(h, 1); !ok {
		t.Fatal("GetTyped with correct type failed")
	}
	if _, ok := table.GetTyped(h, 2); ok {
		t.Fatal("GetTyped with wrong type should fail")
	}

	if _, ok := table.Remove(h, 2); ok {
		t.Fatal("Remove with wrong type should fail")
	}
	val, ok = table.Remove(h, 1)
	if !ok || val != "test" {
		t.Fatalf("Remove = %v, %v; want test, true", val, ok)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
	if _, ok := table.Get(h); ok {
		t.Fatal("Get after Remove should fail")
	}
}

func TestTable_ReservedHandle(t *testing.T) {
	table := NewTable()
	if _, ok := table.Get(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
	if _, ok := table.Get(42); ok {
		t.Fatal("unknown handle must be invalid")
	}
}

func TestTable_ReusesFreedHandles(t *testing.T) {
	table := NewTable()
	a, _ := table.Insert(1, "a")
	b, _ := table.Insert(1, "b")
	table.Remove(a, 1)

	c, _ := table.Insert(1, "c")
	if c != a {
		t.Fatalf("Expected freed handle %d to be reused, got %d", a, c)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if v, _ := table.Get(b); v != "b" {
		t.Fatalf("Get(b) = %v", v)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Insert(1, "test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Fatalf("unexpected event %+v", obs.events[0])
	}

	table.Remove(h, 1)
	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[1].Type != EventDropped || obs.events[1].TypeID != 1 {
		t.Fatalf("unexpected event %+v", obs.events[1])
	}
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)
	d := &dropCounter{}

	table.Insert(1, d)
	table.Insert(2, "b")

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Expected Drop() once, called %d times", d.count)
	}
	if len(obs.events) != 4 {
		t.Fatalf("Expected 2 created + 2 dropped events, got %d", len(obs.events))
	}

	if _, err := table.Insert(1, "c"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close = %v, want ErrClosed", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Len() = %d after Close", table.Len())
	}
}

func TestTyped(t *testing.T) {
	table := NewTable()
	ints := NewTyped[int](table, 1)
	strs := NewTyped[string](table, 2)

	h, err := ints.Insert(7)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := ints.Get(h); !ok || v != 7 {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	if _, ok := strs.Get(h); ok {
		t.Fatal("typed view must not see other types")
	}
	if _, ok := strs.Remove(h); ok {
		t.Fatal("typed view must not remove other types")
	}
	if v, ok := ints.Remove(h); !ok || v != 7 {
		t.Fatalf("Remove = %v, %v", v, ok)
	}
}
