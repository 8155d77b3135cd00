// Package queue provides the crawl work-list.
package queue

import "errors"

// ErrQueueEmpty is returned by Pop on an empty stack.
var ErrQueueEmpty = errors.New("queue is empty")

// Item is a page waiting to be rendered.
type Item struct {
	// URL is the absolute address to render.
	URL string
	// Href is the raw link target the page was found under; empty for the root.
	Href  string
	Depth int
}

// Stack is a last-in first-out work-list giving depth-first traversal.
// It is not safe for concurrent use.
type Stack struct {
	items []*Item
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push adds an item on top of the stack.
func (s *Stack) Push(item *Item) {
	s.items = append(s.items, item)
}

// PushAll pushes items so that the first one is popped first.
func (s *Stack) PushAll(items []*Item) {
	for i := len(items) - 1; i >= 0; i-- {
		s.items = append(s.items, items[i])
	}
}

// Pop removes and returns the top item.
func (s *Stack) Pop() (*Item, error) {
	n := len(s.items)
	if n == 0 {
		return nil, ErrQueueEmpty
	}
	item := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return item, nil
}

// Len returns the number of pending items.
func (s *Stack) Len() int {
	return len(s.items)
}

// IsEmpty reports whether nothing is pending.
func (s *Stack) IsEmpty() bool {
	return len(s.items) == 0
}
