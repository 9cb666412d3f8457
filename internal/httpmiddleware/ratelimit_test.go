package httpmiddleware

import "testing"

func TestAllow_ConsumesCapacity(t *testing.T) {
	l := NewTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should pass within capacity", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("request over capacity should be rejected")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := NewTokenBucket(1, 1)

	if !l.Allow("10.0.0.1") {
		t.Fatal("first key should pass")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("second key should have its own bucket")
	}
	if l.Allow("10.0.0.1") {
		t.Error("first key should be exhausted")
	}
}

func TestNewTokenBucket_DefaultsCapacity(t *testing.T) {
	l := NewTokenBucket(0, 5)
	if l.capacity != 5 {
		t.Errorf("expected capacity to default to rate, got %d", l.capacity)
	}
}
