package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"campus-client/internal/models"
)

// store is the in-memory backing state of the stub backend.
type store struct {
	mu       sync.Mutex
	users    map[int]userRecord
	messages []models.Message
	nextID   int
}

type userRecord struct {
	detail   models.UserDetail
	semester int
	batch    string
	subjects []models.Subject
}

// newStore seeds a teacher and two students so the client has someone to
// talk to out of the box.
func newStore() *store {
	s := &store{users: make(map[int]userRecord), nextID: 1}
	s.addUser(userRecord{
		detail: models.UserDetail{
			ID: 1, Email: "amara.osei@campus.dev", FirstName: "Amara", LastName: "Osei",
			Role: models.RoleTeacher, ProfilePicture: "/media/profiles/1.png",
		},
		subjects: []models.Subject{{ID: 1, Name: "Algorithms", Code: "CS301", Semester: 5}},
	})
	s.addUser(userRecord{
		detail: models.UserDetail{
			ID: 2, Email: "jonas.lindqvist@campus.dev", FirstName: "Jonas", LastName: "Lindqvist",
			Role: models.RoleStudent, ProfilePicture: "/media/profiles/2.png",
		},
		semester: 5, batch: "2023",
	})
	s.addUser(userRecord{
		detail: models.UserDetail{
			ID: 3, Email: "priya.raman@campus.dev", FirstName: "Priya", LastName: "Raman",
			Role: models.RoleStudent, ProfilePicture: "/media/profiles/3.png",
		},
		semester: 5, batch: "2023",
	})
	return s
}

func (s *store) addUser(rec userRecord) {
	s.users[rec.detail.ID] = rec
}

// userByEmail resolves login credentials; any password is accepted in
// the stub.
func (s *store) userByEmail(email string) (models.UserDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if strings.EqualFold(rec.detail.Email, email) {
			return rec.detail, true
		}
	}
	return models.UserDetail{}, false
}

// actor returns the role-shaped profile for a user.
func (s *store) actor(id int) (models.Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, false
	}
	switch rec.detail.Role {
	case models.RoleStudent:
		return models.Student{ID: rec.detail.ID, User: rec.detail, Semester: rec.semester, Batch: rec.batch}, true
	case models.RoleTeacher:
		return models.Teacher{ID: rec.detail.ID, User: rec.detail, Subjects: rec.subjects}, true
	default:
		return models.Admin{User: rec.detail}, true
	}
}

// search matches users by name or email fragment.
func (s *store) search(query string) []models.UserDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	query = strings.ToLower(query)
	var out []models.UserDetail
	for _, rec := range s.users {
		hay := strings.ToLower(rec.detail.FirstName + " " + rec.detail.LastName + " " + rec.detail.Email)
		if strings.Contains(hay, query) {
			out = append(out, rec.detail)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// history returns the conversation between two users (or one user with
// themselves) ordered oldest first.
func (s *store) history(userID, otherID int) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if between(m, userID, otherID) {
			out = append(out, m)
		}
	}
	return out
}

// append stores a new message with a server-assigned id and timestamp.
func (s *store) append(senderID, receiverID int, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.Message{
		ID:        s.nextID,
		Sender:    senderID,
		Receiver:  receiverID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg
}

// summaries builds the conversation list for one user: the latest
// message per counterpart, most recent conversation first.
func (s *store) summaries(userID int) []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[int]models.Message)
	for _, m := range s.messages {
		var other int
		switch {
		case m.Sender == userID && m.Receiver == userID:
			other = userID
		case m.Sender == userID:
			other = m.Receiver
		case m.Receiver == userID:
			other = m.Sender
		default:
			continue
		}
		if prev, ok := latest[other]; !ok || m.CreatedAt.After(prev.CreatedAt) {
			latest[other] = m
		}
	}

	out := make([]models.ConversationSummary, 0, len(latest))
	for other, m := range latest {
		rec, ok := s.users[other]
		if !ok {
			continue
		}
		out = append(out, models.ConversationSummary{
			User:            rec.detail,
			LastMessage:     m.Content,
			LastMessageTime: m.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageTime.After(out[j].LastMessageTime) })
	return out
}

func between(m models.Message, a, b int) bool {
	if a == b {
		return m.Sender == a && m.Receiver == a
	}
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}
