package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(q *Queue) []uint32 {
	var ids []uint32
	for t := q.head; t != nil; t = t.Next {
		ids = append(ids, t.Index)
	}
	return ids
}

func TestQueue(t *testing.T) {
	var q Queue
	assert.True(t, q.Empty())
	assert.Nil(t, q.Pop())

	tasks := make([]*Task, 4)
	for i := range tasks {
		tasks[i] = &Task{Index: uint32(i)}
		q.Push(tasks[i])
	}
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []uint32{0, 1, 2, 3}, collect(&q))

	assert.Same(t, tasks[0], q.Pop())
	assert.Nil(t, tasks[0].Next)
	q.Push(tasks[0])
	assert.Equal(t, []uint32{1, 2, 3, 0}, collect(&q))

	for q.Pop() != nil {
	}
	assert.True(t, q.Empty())
	assert.Zero(t, q.Len())
}

func TestQueueRemove(t *testing.T) {
	var q Queue
	tasks := make([]*Task, 4)
	for i := range tasks {
		tasks[i] = &Task{Index: uint32(i)}
		q.Push(tasks[i])
	}

	assert.True(t, q.Remove(tasks[2]))
	assert.False(t, q.Remove(tasks[2]))
	assert.Equal(t, []uint32{0, 1, 3}, collect(&q))

	// Tail removal must move the tail pointer back.
	assert.True(t, q.Remove(tasks[3]))
	q.Push(tasks[2])
	assert.Equal(t, []uint32{0, 1, 2}, collect(&q))

	assert.True(t, q.Remove(tasks[0]))
	assert.True(t, q.Remove(tasks[1]))
	assert.True(t, q.Remove(tasks[2]))
	assert.True(t, q.Empty())
	q.Push(tasks[3])
	assert.Same(t, tasks[3], q.Pop())
}

func TestQueueAppend(t *testing.T) {
	var a, b Queue
	a.Append(&b)
	assert.True(t, a.Empty())

	for i := 0; i < 2; i++ {
		a.Push(&Task{Index: uint32(i)})
	}
	for i := 2; i < 5; i++ {
		b.Push(&Task{Index: uint32(i)})
	}
	a.Append(&b)
	assert.True(t, b.Empty())
	assert.Zero(t, b.Len())
	assert.Equal(t, 5, a.Len())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, collect(&a))

	var c Queue
	c.Append(&a)
	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, collect(&c))
	c.Push(&Task{Index: 5})
	assert.Equal(t, 6, c.Len())
}
