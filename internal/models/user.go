package models

import (
	"encoding/json"
	"fmt"
)

// Role names used by the backend.
type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
	RoleAdmin   Role = "Admin"
)

// UserDetail is the common profile shape shared by every role.
type UserDetail struct {
	ID             int    `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Phone          string `json:"phone"`
	Role           Role   `json:"role_name"`
	ProfilePicture string `json:"profile_picture"`
}

// FullName joins first and last name for display.
func (u UserDetail) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Subject is a course subject taught by a teacher.
type Subject struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Semester int    `json:"semester"`
}

// StudentDetail is the role-shaped profile of a student.
type StudentDetail struct {
	ID       int        `json:"id"`
	User     UserDetail `json:"user"`
	Semester int        `json:"semester"`
	Batch    string     `json:"batch"`
}

// TeacherDetail is the role-shaped profile of a teacher.
type TeacherDetail struct {
	ID       int        `json:"id"`
	User     UserDetail `json:"user"`
	Subjects []Subject  `json:"subjects"`
}

// Actor is the capability-tagged variant of a platform user. Exactly one
// of Student, Teacher or Admin implements it; decision points switch on
// the concrete type rather than comparing role-name strings.
type Actor interface {
	actor()
	Profile() UserDetail
}

// Student wraps a student profile as an Actor.
type Student StudentDetail

func (Student) actor() {}

// Profile returns the common user fields.
func (s Student) Profile() UserDetail { return s.User }

// Teacher wraps a teacher profile as an Actor.
type Teacher TeacherDetail

func (Teacher) actor() {}

// Profile returns the common user fields.
func (t Teacher) Profile() UserDetail { return t.User }

// Admin carries no role-specific shape beyond the common profile.
type Admin struct {
	User UserDetail `json:"user"`
}

func (Admin) actor() {}

// Profile returns the common user fields.
func (a Admin) Profile() UserDetail { return a.User }

// DecodeActor decodes a role-shaped profile payload into the matching
// Actor variant based on the embedded role name.
func DecodeActor(data []byte) (Actor, error) {
	var probe struct {
		User struct {
			Role Role `json:"role_name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode actor: %w", err)
	}

	switch probe.User.Role {
	case RoleStudent:
		var s Student
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode student: %w", err)
		}
		return s, nil
	case RoleTeacher:
		var t Teacher
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode teacher: %w", err)
		}
		return t, nil
	case RoleAdmin:
		var a Admin
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode admin: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("decode actor: unknown role %q", probe.User.Role)
	}
}
