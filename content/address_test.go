package content

import (
	"fmt"
	"strings"
	"testing"
)

func TestAddress_Deterministic(t *testing.T) {
	spec := KeySpec{Namespace: "ny", EntityID: "1612", Kind: "ticket"}
	data := []byte("identical bytes")

	key1, sum1, err := Address(data, spec, TypePNG)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	key2, sum2, err := Address(data, spec, TypePNG)
	if err != nil {
		t.Fatalf("address again: %v", err)
	}

	if key1 != key2 || sum1 != sum2 {
		t.Fatalf("identical bytes produced different keys: %q vs %q", key1, key2)
	}
	if !strings.HasPrefix(key1, "ny/1612/ticket-") || !strings.HasSuffix(key1, ".png") {
		t.Fatalf("unexpected key shape: %q", key1)
	}
}

func TestAddress_NoCollisions(t *testing.T) {
	spec := KeySpec{Namespace: "ny", EntityID: "7", Kind: "odds"}
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		data := []byte(fmt.Sprintf("payload-%d", i))
		key, _, err := Address(data, spec, TypeJPEG)
		if err != nil {
			t.Fatalf("address %d: %v", i, err)
		}
		if prev, ok := seen[key]; ok {
			t.Fatalf("collision: %q and %q share key %q", prev, data, key)
		}
		seen[key] = string(data)
	}
}

func TestAddress_ValidatesSpec(t *testing.T) {
	if _, _, err := Address([]byte("x"), KeySpec{EntityID: "1", Kind: "ticket"}, TypePNG); err == nil {
		t.Fatal("expected error for missing namespace")
	}
	if _, _, err := Address([]byte("x"), KeySpec{Namespace: "ns", Kind: "ticket"}, TypePNG); err == nil {
		t.Fatal("expected error for missing entity id")
	}
	if _, _, err := Address([]byte("x"), KeySpec{Namespace: "ns", EntityID: "1", Kind: "ticket"}, "image/webp"); err == nil {
		t.Fatal("expected error for unsupported content type")
	}
}
