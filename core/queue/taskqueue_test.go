// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitFIFO(t *testing.T) {
	fixed := time.Unix(1000, 0)
	q := New(func() time.Time { return fixed })

	var order []int
	q.Submit(func() { order = append(order, 1) })
	q.Submit(func() { order = append(order, 2) })
	q.Submit(func() { order = append(order, 3) })

	for {
		task, ok := q.Pop()
		if !ok {
			break
		}
		task.Fn()
	}
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestScheduleOrdersByDueTime(t *testing.T) {
	fixed := time.Unix(1000, 0)
	q := New(func() time.Time { return fixed })

	var order []string
	q.Schedule(fixed.Add(2*time.Second), func() { order = append(order, "late") })
	q.Schedule(fixed.Add(1*time.Second), func() { order = append(order, "early") })

	// Nothing due yet at "now".
	_, ok := q.Pop()
	require.False(t, ok)

	q2 := New(func() time.Time { return fixed.Add(3 * time.Second) })
	q2.Schedule(fixed.Add(2*time.Second), func() { order = append(order, "late") })
	q2.Schedule(fixed.Add(1*time.Second), func() { order = append(order, "early") })
	for {
		task, ok := q2.Pop()
		if !ok {
			break
		}
		task.Fn()
	}
	require.Equal(t, []string{"early", "late"}, order)
}
