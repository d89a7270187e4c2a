package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDailyCounterEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	c := NewDailyCounter(map[Resource]int{ResourceModel: 2})

	if err := c.Allow(ctx, ResourceModel); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := c.Allow(ctx, ResourceModel); err != nil {
		t.Fatalf("second call: %v", err)
	}
	err := c.Allow(ctx, ResourceModel)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("third call error = %v, want ErrExhausted", err)
	}
}

func TestDailyCounterUnmeteredResource(t *testing.T) {
	ctx := context.Background()
	c := NewDailyCounter(map[Resource]int{ResourceModel: 1})

	// OCR has no configured limit.
	for i := 0; i < 10; i++ {
		if err := c.Allow(ctx, ResourceOCR); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestDailyCounterResetsNextDay(t *testing.T) {
	ctx := context.Background()
	c := NewDailyCounter(map[Resource]int{ResourceOCR: 1})

	current := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	if err := c.Allow(ctx, ResourceOCR); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := c.Allow(ctx, ResourceOCR); !errors.Is(err, ErrExhausted) {
		t.Fatalf("second call error = %v, want ErrExhausted", err)
	}

	current = current.Add(2 * time.Hour) // next UTC day
	if err := c.Allow(ctx, ResourceOCR); err != nil {
		t.Fatalf("call after rollover: %v", err)
	}
}

func TestUnlimited(t *testing.T) {
	if err := (Unlimited{}).Allow(context.Background(), ResourceModel); err != nil {
		t.Fatal(err)
	}
}
