package api

import (
	"sync"
)

// ConvolutionStore keeps finished convolutions in memory, oldest first.
// When capacity is positive the oldest entries are evicted to stay under it.
type ConvolutionStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	results  map[string]*ConvolutionResponse
}

func NewConvolutionStore(capacity int) *ConvolutionStore {
	return &ConvolutionStore{
		capacity: capacity,
		results:  make(map[string]*ConvolutionResponse),
	}
}

func (s *ConvolutionStore) Save(resp *ConvolutionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.results[resp.ID] = resp
	for s.capacity > 0 && len(s.order) > s.capacity {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns the stored convolution or an error wrapping ErrNotFound.
func (s *ConvolutionStore) Get(id string) (*ConvolutionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.results[id]
	if !ok {
		return nil, notFoundError{id: id}
	}
	return resp, nil
}

// Delete removes a convolution, or returns an error wrapping ErrNotFound if
// it was never stored or has been evicted.
func (s *ConvolutionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return notFoundError{id: id}
	}
	delete(s.results, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *ConvolutionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}
