package repo

import (
	"sync"
	"time"
)

// pendingRequestTTL is how long an unanswered contact request is kept
// before Sweep may discard it (spec.md §3/§4.5: "Old pending requests
// (>7 d) may be swept").
const pendingRequestTTL = 7 * 24 * time.Hour

// PendingContactRequest tracks an outstanding CONTACT_REQUEST awaiting a
// CONTACT_REQUEST_RESPONSE.
type PendingContactRequest struct {
	RequestID  string
	SenderID   int32
	ReceiverID int32
	Timestamp  time.Time
}

// ContactRequests is a concurrent requestId -> *PendingContactRequest store.
type ContactRequests struct {
	m sync.Map // string -> *PendingContactRequest
}

// NewContactRequests creates an empty pending-request repository.
func NewContactRequests() *ContactRequests {
	return &ContactRequests{}
}

// PutIfAbsent records a new pending request unless requestId is already in
// use.
func (r *ContactRequests) PutIfAbsent(req *PendingContactRequest) (*PendingContactRequest, bool) {
	actual, loaded := r.m.LoadOrStore(req.RequestID, req)
	return actual.(*PendingContactRequest), !loaded
}

// Get returns the pending request for requestId, if any.
func (r *ContactRequests) Get(requestID string) (*PendingContactRequest, bool) {
	v, ok := r.m.Load(requestID)
	if !ok {
		return nil, false
	}
	return v.(*PendingContactRequest), true
}

// Remove deletes requestId, e.g. once it has been answered.
func (r *ContactRequests) Remove(requestID string) {
	r.m.Delete(requestID)
}

// Sweep removes requests older than the 7-day TTL, as measured from now.
// It returns the number of entries removed.
func (r *ContactRequests) Sweep(now time.Time) int {
	removed := 0
	r.m.Range(func(key, value any) bool {
		req := value.(*PendingContactRequest)
		if now.Sub(req.Timestamp) > pendingRequestTTL {
			if r.m.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}
