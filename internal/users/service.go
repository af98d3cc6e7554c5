// Package users applies administrative actions to user accounts. Every
// action is checked against the access policy with the target's current
// role before anything is written.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/models"
	"github.com/ukydev/fleet-rental/internal/policy"
)

// Command is one administrative request on a user account.
type Command struct {
	UserID string      `json:"userId"`
	Action string      `json:"action"`
	Data   CommandData `json:"data"`
}

// CommandData carries the action specific arguments.
type CommandData struct {
	// Role is the new role of an update_role command.
	Role string `json:"role,omitempty"`
	// Duration limits a ban, e.g. "72h". An empty duration bans indefinitely.
	Duration string `json:"duration,omitempty"`
	// Metadata keys are merged into the account metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Result is the outcome of an applied command. User is nil after a delete.
type Result struct {
	Action policy.Action      `json:"action"`
	User   *models.UserAccount `json:"user,omitempty"`
}

// Service applies commands to the user directory.
type Service struct {
	users db.UserCollection
	now   func() time.Time
	log   *logrus.Entry
}

// NewService creates a user administration service.
func NewService(users db.UserCollection, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{users: users, now: time.Now, log: log.WithField("component", "users")}
}

// Apply validates cmd, loads the target account, evaluates the policy and
// performs the mutation. Denied commands leave the account untouched.
func (s *Service) Apply(ctx context.Context, p *models.Principal, cmd Command) (*Result, error) {
	if p == nil {
		return nil, apperr.Unauthenticated()
	}
	action, ok := policy.ParseUserAction(strings.TrimSpace(cmd.Action))
	if !ok {
		if strings.TrimSpace(cmd.Action) == "" {
			return nil, apperr.Validation(map[string]string{"action": "is required"})
		}
		return nil, apperr.Validation(map[string]string{"action": "is not a recognized action"})
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, apperr.Validation(map[string]string{"userId": "is required"})
	}
	fields, err := s.fieldsFor(action, cmd.Data)
	if err != nil {
		return nil, err
	}

	// Callers without a staff role are refused before the target is read,
	// so they learn nothing about the account.
	if err := s.decide(p, action, policy.Ownership{RequestedRole: deref(fields.Role)}, cmd.UserID); err != nil {
		return nil, err
	}

	target, err := s.users.FindUserByID(ctx, cmd.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", cmd.UserID).Error("Failed to load user")
		return nil, apperr.Storage("find user", err)
	}

	own := policy.Ownership{
		TargetIsAdmin: target.Role == models.RoleAdmin,
		RequestedRole: deref(fields.Role),
	}
	if err := s.decide(p, action, own, cmd.UserID); err != nil {
		return nil, err
	}

	result := &Result{Action: action}
	if action == policy.ActionDelete {
		if err := s.users.DeleteUser(ctx, cmd.UserID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, apperr.NotFound("user")
			}
			return nil, apperr.Storage("delete user", err)
		}
	} else {
		updated, err := s.users.UpdateUserFields(ctx, cmd.UserID, fields)
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		if err != nil {
			s.log.WithError(err).WithField("user_id", cmd.UserID).Error("Failed to update user")
			return nil, apperr.Storage("update user", err)
		}
		result.User = updated
	}

	s.log.WithFields(logrus.Fields{
		"action":   action,
		"user_id":  cmd.UserID,
		"actor_id": p.ID,
	}).Info("User administration action applied")
	return result, nil
}

func (s *Service) fieldsFor(action policy.Action, data CommandData) (db.UserFields, error) {
	var fields db.UserFields
	switch action {
	case policy.ActionBan:
		banned := true
		fields.Banned = &banned
		if data.Duration != "" {
			d, err := time.ParseDuration(data.Duration)
			if err != nil || d <= 0 {
				return fields, apperr.Validation(map[string]string{"data.duration": "must be a positive duration such as 72h"})
			}
			until := s.now().UTC().Add(d)
			fields.BannedUntil = &until
		}
	case policy.ActionUnban:
		banned := false
		fields.Banned = &banned
	case policy.ActionUpdateRole:
		role, ok := models.ParseRole(data.Role)
		if !ok {
			return fields, apperr.Validation(map[string]string{"data.role": "must be one of client, manager, admin"})
		}
		fields.Role = &role
	case policy.ActionUpdateMetadata:
		if len(data.Metadata) == 0 {
			return fields, apperr.Validation(map[string]string{"data.metadata": "is required"})
		}
		fields.Metadata = data.Metadata
	}
	return fields, nil
}

func (s *Service) decide(p *models.Principal, action policy.Action, own policy.Ownership, userID string) error {
	d := policy.Decide(p, policy.KindUserAccount, action, own)
	if d.Allowed {
		return nil
	}
	fields := logrus.Fields{"kind": policy.KindUserAccount, "action": action, "reason": d.Reason, "user_id": userID}
	if p != nil {
		fields["principal_id"] = p.ID
	}
	s.log.WithFields(fields).Info("Access denied")
	if d.Reason == policy.ReasonUnauthenticated {
		return apperr.Unauthenticated()
	}
	return apperr.Forbidden(string(d.Reason))
}

func deref(r *models.Role) models.Role {
	if r == nil {
		return ""
	}
	return *r
}
