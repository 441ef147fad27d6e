package scheduler

// jobQueue is a min-heap of pending entries ordered by RunAt, with
// insertion order breaking ties.
type jobQueue []*entry

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].job.RunAt.Equal(q[j].job.RunAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].job.RunAt.Before(q[j].job.RunAt)
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
