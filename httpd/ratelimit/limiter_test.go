package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterCountsDown(t *testing.T) {
	t.Parallel()

	l := New()
	keys := []BudgetKey{{Key: "write:ip:1.2.3.4", Limit: 30}}

	// The N-th allowed request observes remaining = limit - N.
	for n := 1; n <= 30; n++ {
		d := l.Check(keys)
		require.True(t, d.Allowed, "request %d", n)
		assert.Equal(t, 30-n, d.Remaining, "request %d", n)
		assert.Equal(t, 30, d.Limit)
	}

	// The (limit+1)-th is denied with a bounded Retry-After.
	d := l.Check(keys)
	require.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, Window)
}

func TestLimiterWindowRollover(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	l := NewWithClock(func() time.Time { return now })
	keys := []BudgetKey{{Key: "read:ip:1.2.3.4", Limit: 2}}

	require.True(t, l.Check(keys).Allowed)
	require.True(t, l.Check(keys).Allowed)
	require.False(t, l.Check(keys).Allowed)

	now = now.Add(Window)
	d := l.Check(keys)
	require.True(t, d.Allowed, "a fresh window resets the budget")
	assert.Equal(t, 1, d.Remaining)
}

func TestLimiterReportsTightestBudget(t *testing.T) {
	t.Parallel()

	l := New()
	keys := []BudgetKey{
		{Key: "read:ip:1.2.3.4", Limit: 120},
		{Key: "read:token:abc", Limit: 600},
	}

	d := l.Check(keys)
	require.True(t, d.Allowed)
	assert.Equal(t, 120, d.Limit, "headers reflect the more restrictive counter")
	assert.Equal(t, 119, d.Remaining)
}

func TestLimiterDenialDoesNotCharge(t *testing.T) {
	t.Parallel()

	l := New()
	ip := []BudgetKey{{Key: "write:ip:9.9.9.9", Limit: 1}}
	both := []BudgetKey{
		{Key: "write:ip:9.9.9.9", Limit: 1},
		{Key: "write:token:t1", Limit: 120},
	}

	require.True(t, l.Check(ip).Allowed)
	require.False(t, l.Check(both).Allowed)

	// The token counter was not charged by the denied request.
	d := l.Check([]BudgetKey{{Key: "write:token:t1", Limit: 120}})
	require.True(t, d.Allowed)
	assert.Equal(t, 119, d.Remaining)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New()
	require.True(t, l.Check([]BudgetKey{{Key: "write:ip:a", Limit: 1}}).Allowed)
	require.False(t, l.Check([]BudgetKey{{Key: "write:ip:a", Limit: 1}}).Allowed)
	assert.True(t, l.Check([]BudgetKey{{Key: "write:ip:b", Limit: 1}}).Allowed)
}
