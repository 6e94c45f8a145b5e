package helper

import "testing"

func TestHash8(t *testing.T) {
	a := Hash8("john@example.com")
	if len(a) != 16 {
		t.Fatalf("len=%d", len(a))
	}
	if b := Hash8("  John@Example.COM "); b != a {
		t.Fatalf("normalization: %s != %s", b, a)
	}
	if Hash8("jane@example.com") == a {
		t.Fatal("distinct emails collided")
	}
}
