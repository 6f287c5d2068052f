package clipboard

import "testing"

func TestMemorySetGetText(t *testing.T) {
	m := NewMemory()
	if err := m.SetText("hello"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	got, err := m.GetText()
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}
}

func TestMemorySetGetImage(t *testing.T) {
	m := NewMemory()
	data := []byte{0x89, 0x50, 0x4E, 0x47}
	if err := m.SetImage(data); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	got, err := m.GetImage()
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("got %v want %v", got, data)
	}
	// Mutating the returned slice must not affect internal state.
	got[0] = 0x00
	again, _ := m.GetImage()
	if again[0] != 0x89 {
		t.Fatal("GetImage did not return a defensive copy")
	}
}
