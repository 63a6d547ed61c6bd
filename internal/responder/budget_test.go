package responder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBudgetSlidingWindow(t *testing.T) {
	b := NewBudget(2, time.Minute)
	now := time.Unix(1_000, 0)

	assert.True(t, b.Allow("t1", now))
	assert.True(t, b.Allow("t1", now.Add(10*time.Second)))
	assert.False(t, b.Allow("t1", now.Add(20*time.Second)))
	assert.True(t, b.Allow("t2", now.Add(20*time.Second)), "keys are independent")

	assert.True(t, b.Allow("t1", now.Add(61*time.Second)), "first hit expired")
	assert.False(t, b.Allow("t1", now.Add(62*time.Second)))
}

func TestBudgetUnlimitedAndForget(t *testing.T) {
	var nilBudget *Budget
	assert.True(t, nilBudget.Allow("t", time.Now()))

	unlimited := NewBudget(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Allow("t", time.Now()))
	}

	b := NewBudget(1, time.Hour)
	now := time.Now()
	assert.True(t, b.Allow("t", now))
	assert.False(t, b.Allow("t", now))
	b.Forget("t")
	assert.True(t, b.Allow("t", now))

	b.Prune(now.Add(2 * time.Hour))
	assert.Empty(t, b.windows)
}
