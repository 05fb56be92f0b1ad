package models

import (
	"time"
)

// Team groups users for approval routing. A member with no direct
// supervisor is routed to the team's earliest assigned supervisor, so a
// team without Supervisors leaves such members with an empty chain.
type Team struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Name        string           `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Members     []User           `gorm:"foreignKey:TeamID" json:"members,omitempty"`
	Supervisors []TeamSupervisor `gorm:"foreignKey:TeamID" json:"supervisors,omitempty"`
}
