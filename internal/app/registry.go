package app

import (
	"time"

	"live-poll-service/internal/domain"
)

// Registry is the in-memory directory of connected students keyed by session id.
// It has no locking of its own: the Coordinator is its only writer and serializes access.
type Registry struct {
	now     func() time.Time
	entries map[string]*domain.Participant
	order   []string // session ids in join order
}

// NewRegistry creates an empty registry.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:     now,
		entries: make(map[string]*domain.Participant),
	}
}

// Join inserts a participant or refreshes an existing one for the same session.
// The answered flag survives a rejoin; only ResetAllAnswered clears it.
func (r *Registry) Join(student domain.Student, connID string) domain.ParticipantView {
	if p, ok := r.entries[student.SessionID]; ok {
		p.StudentID = student.ID
		p.Name = student.Name
		p.ConnID = connID
		return p.View()
	}
	p := &domain.Participant{
		StudentID: student.ID,
		SessionID: student.SessionID,
		Name:      student.Name,
		ConnID:    connID,
		JoinedAt:  r.now(),
	}
	r.entries[student.SessionID] = p
	r.order = append(r.order, student.SessionID)
	return p.View()
}

// Leave removes the participant for sessionID. It is a no-op when absent.
func (r *Registry) Leave(sessionID string) (domain.Participant, bool) {
	p, ok := r.entries[sessionID]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.entries, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *p, true
}

// Get returns a copy of the participant for sessionID.
func (r *Registry) Get(sessionID string) (domain.Participant, bool) {
	p, ok := r.entries[sessionID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// FindByStudent looks a participant up by durable student id.
func (r *Registry) FindByStudent(studentID string) (domain.Participant, bool) {
	for _, id := range r.order {
		if p := r.entries[id]; p.StudentID == studentID {
			return *p, true
		}
	}
	return domain.Participant{}, false
}

// FindByConn looks a participant up by connection id.
func (r *Registry) FindByConn(connID string) (domain.Participant, bool) {
	for _, id := range r.order {
		if p := r.entries[id]; p.ConnID == connID {
			return *p, true
		}
	}
	return domain.Participant{}, false
}

// LeaveConn removes every participant bound to connID and returns them in join order.
func (r *Registry) LeaveConn(connID string) []domain.Participant {
	var removed []domain.Participant
	kept := r.order[:0]
	for _, id := range r.order {
		p := r.entries[id]
		if p.ConnID != connID {
			kept = append(kept, id)
			continue
		}
		removed = append(removed, *p)
		delete(r.entries, id)
	}
	r.order = kept
	return removed
}

// MarkAnswered flags the participant as having answered the current poll.
func (r *Registry) MarkAnswered(sessionID string) {
	if p, ok := r.entries[sessionID]; ok {
		p.HasAnswered = true
	}
}

// UnmarkAnswered reverts MarkAnswered after a failed persistence call.
func (r *Registry) UnmarkAnswered(sessionID string) {
	if p, ok := r.entries[sessionID]; ok {
		p.HasAnswered = false
	}
}

// ResetAllAnswered clears the answered flag for everyone; called once per new poll.
func (r *Registry) ResetAllAnswered() {
	for _, p := range r.entries {
		p.HasAnswered = false
	}
}

// Snapshot returns participant views in join order.
func (r *Registry) Snapshot() []domain.ParticipantView {
	views := make([]domain.ParticipantView, 0, len(r.order))
	for _, id := range r.order {
		views = append(views, r.entries[id].View())
	}
	return views
}

// Count returns the number of connected participants.
func (r *Registry) Count() int {
	return len(r.entries)
}

// AnsweredCount returns how many connected participants answered the current poll.
func (r *Registry) AnsweredCount() int {
	n := 0
	for _, p := range r.entries {
		if p.HasAnswered {
			n++
		}
	}
	return n
}
