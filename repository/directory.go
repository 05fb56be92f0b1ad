package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"leaveflow/apperr"
	"leaveflow/chain"
	"leaveflow/models"
)

// Directory reads users, roles and the supervisor-of relation.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) User(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, apperr.Dependency(err, "load user")
	}
	return &user, nil
}

func (d *Directory) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", username)
		}
		return nil, apperr.Dependency(err, "load user")
	}
	return &user, nil
}

func (d *Directory) Role(ctx context.Context, actorID uint) (models.Role, error) {
	user, err := d.User(ctx, actorID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (d *Directory) DisplayName(ctx context.Context, userID uint) (string, error) {
	user, err := d.User(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.DisplayName(), nil
}

// Supervisor returns the user's direct supervisor, falling back to the
// earliest supervisor assigned to the user's team.
func (d *Directory) Supervisor(ctx context.Context, userID uint) (*chain.Person, error) {
	user, err := d.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SupervisorID != nil {
		supervisor, err := d.User(ctx, *user.SupervisorID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &chain.Person{ID: supervisor.ID, Name: supervisor.DisplayName()}, nil
	}
	if user.TeamID == nil {
		return nil, nil
	}
	var assignment models.TeamSupervisor
	err = d.db.WithContext(ctx).
		Preload("User").
		Where("team_id = ? AND user_id <> ?", *user.TeamID, userID).
		Order("id asc").
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Dependency(err, "load team supervisor")
	}
	if assignment.User == nil {
		return nil, nil
	}
	return &chain.Person{ID: assignment.User.ID, Name: assignment.User.DisplayName()}, nil
}

func (d *Directory) SetRole(ctx context.Context, userID uint, role models.Role) error {
	if !role.Valid() {
		return apperr.Validation("role", "unknown role")
	}
	return d.update(ctx, userID, "role", role)
}

func (d *Directory) SetSupervisor(ctx context.Context, userID uint, supervisorID *uint) error {
	if supervisorID != nil {
		if *supervisorID == userID {
			return apperr.Validation("supervisor_id", "a user cannot supervise themselves")
		}
		if _, err := d.User(ctx, *supervisorID); err != nil {
			return err
		}
	}
	return d.update(ctx, userID, "supervisor_id", orNull(supervisorID))
}

func (d *Directory) AssignTeamSupervisor(ctx context.Context, teamID, supervisorID uint) error {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.TeamSupervisor{}).
		Where("user_id = ? AND team_id = ?", supervisorID, teamID).
		Count(&count).Error
	if err != nil {
		return apperr.Dependency(err, "check team supervisor")
	}
	if count > 0 {
		return apperr.Conflict("assignment already exists")
	}
	assignment := models.TeamSupervisor{UserID: supervisorID, TeamID: teamID}
	if err := d.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		return apperr.Dependency(err, "assign team supervisor")
	}
	return nil
}

func (d *Directory) update(ctx context.Context, userID uint, column string, value any) error {
	result := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update(column, value)
	if result.Error != nil {
		return apperr.Dependency(result.Error, "update user")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("user", userID)
	}
	return nil
}

func (d *Directory) RemoveTeamSupervisor(ctx context.Context, assignmentID uint) error {
	result := d.db.WithContext(ctx).Delete(&models.TeamSupervisor{}, assignmentID)
	if result.Error != nil {
		return apperr.Dependency(result.Error, "remove team supervisor")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("team supervisor assignment", assignmentID)
	}
	return nil
}

// SetPassword stores a new password hash and clears the forced change flag.
func (d *Directory) SetPassword(ctx context.Context, userID uint, hash string) error {
	result := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"password_hash": hash, "must_change_password": false})
	if result.Error != nil {
		return apperr.Dependency(result.Error, "update password")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("user", userID)
	}
	return nil
}
