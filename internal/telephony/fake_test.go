package telephony

import (
	"context"
	"sync"
)

type fakeProvider struct {
	mu       sync.Mutex
	placeErr error
	placed   []CallRequest
	polls    map[string][]CallDetails
	getErr   map[string]error
	pages    []SearchPage
	searches []SearchQuery
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{polls: map[string][]CallDetails{}, getErr: map[string]error{}}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed = append(f.placed, req)
	return "call-1", nil
}

// GetCall pops the next queued answer; the last one repeats.
func (f *fakeProvider) GetCall(ctx context.Context, id string) (CallDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return CallDetails{}, err
	}
	q := f.polls[id]
	if len(q) == 0 {
		return CallDetails{}, ErrNotFound
	}
	d := q[0]
	if len(q) > 1 {
		f.polls[id] = q[1:]
	}
	return d, nil
}

func (f *fakeProvider) SearchCalls(ctx context.Context, q SearchQuery) (SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	if len(f.pages) == 0 {
		return SearchPage{}, nil
	}
	p := f.pages[0]
	f.pages = f.pages[1:]
	return p, nil
}
