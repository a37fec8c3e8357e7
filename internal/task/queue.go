package task

const asserts = false

// Queue is a FIFO container of tasks, linked through Task.Next.
// The zero value is an empty queue.
//
// A Queue does no locking of its own. The ready queue of a core is guarded by
// that core's interrupt mask, semaphore wait queues by the cross-core lock.
type Queue struct {
	head, tail *Task
	n          int
}

// Push a task onto the back of the queue.
func (q *Queue) Push(t *Task) {
	if asserts && t.Next != nil {
		panic("task: pushing a task to a queue with a non-nil Next pointer")
	}
	if q.tail != nil {
		q.tail.Next = t
	}
	q.tail = t
	t.Next = nil
	if q.head == nil {
		q.head = t
	}
	q.n++
}

// Pop a task off the front of the queue, or nil if the queue is empty.
func (q *Queue) Pop() *Task {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.Next
	if q.tail == t {
		q.tail = nil
	}
	t.Next = nil
	q.n--
	return t
}

// Remove unlinks t from the queue. It reports whether t was found.
func (q *Queue) Remove(t *Task) bool {
	var prev *Task
	for cur := q.head; cur != nil; prev, cur = cur, cur.Next {
		if cur != t {
			continue
		}
		if prev == nil {
			q.head = cur.Next
		} else {
			prev.Next = cur.Next
		}
		if q.tail == cur {
			q.tail = prev
		}
		cur.Next = nil
		q.n--
		return true
	}
	return false
}

// Append pops the contents of another queue and pushes them onto the end of this queue.
func (q *Queue) Append(other *Queue) {
	if other.head == nil {
		return
	}
	if q.head == nil {
		q.head = other.head
	} else {
		q.tail.Next = other.head
	}
	q.tail = other.tail
	q.n += other.n
	other.head, other.tail, other.n = nil, nil, 0
}

// Empty checks if the queue is empty.
func (q *Queue) Empty() bool {
	return q.head == nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return q.n
}

