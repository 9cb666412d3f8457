package verify

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryCounter(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	if n, err := c.Count(ctx, "s1", "stu1"); err != nil || n != 0 {
		t.Errorf("fresh counter should be 0, got %d, err %v", n, err)
	}

	for want := 1; want <= 3; want++ {
		n, err := c.Increment(ctx, "s1", "stu1")
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if n != want {
			t.Errorf("expected %d after increment, got %d", want, n)
		}
	}

	// Separate keys per student and per session.
	if n, _ := c.Count(ctx, "s1", "stu2"); n != 0 {
		t.Errorf("other student should be 0, got %d", n)
	}
	if n, _ := c.Count(ctx, "s2", "stu1"); n != 0 {
		t.Errorf("other session should be 0, got %d", n)
	}
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Increment(ctx, "s1", "stu1"); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := c.Count(ctx, "s1", "stu1"); n != 50 {
		t.Errorf("expected 50 after concurrent increments, got %d", n)
	}
}
