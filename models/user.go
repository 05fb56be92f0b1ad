package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleHR         Role = "HR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleEmployee   Role = "EMPLOYEE"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleSupervisor, RoleEmployee:
		return true
	}
	return false
}

type User struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Username           string         `gorm:"uniqueIndex;not null;size:100" json:"username"`
	FullName           string         `gorm:"not null;size:200" json:"full_name"`
	PasswordHash       string         `gorm:"not null" json:"-"`
	Role               Role           `gorm:"not null;size:20" json:"role"`
	MustChangePassword bool           `gorm:"default:true" json:"must_change_password"`
	SupervisorID       *uint          `gorm:"index" json:"supervisor_id"`
	Supervisor         *User          `gorm:"foreignKey:SupervisorID" json:"supervisor,omitempty"`
	TeamID             *uint          `gorm:"index" json:"team_id"`
	Team               *Team          `gorm:"foreignKey:TeamID" json:"team,omitempty"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsSupervisor() bool {
	return u.Role == RoleSupervisor
}
