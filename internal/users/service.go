package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	dbpkg "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/google/uuid"
)

const maxReasonLength = 500

type adminRecorder interface {
	Record(ctx context.Context, entry adminlogs.Entry)
}

// Service holds the operator actions on accounts.
type Service struct {
	repo      *Repository
	adminLogs adminRecorder
	logg      *logger.Logger
}

func NewService(repo *Repository, adminLogs adminRecorder, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("users repository required")
	}
	return &Service{repo: repo, adminLogs: adminLogs, logg: logg}, nil
}

// EnsureAccount creates a built-in account such as the support agent when it
// is missing. An existing row is left untouched, and a concurrent insert by
// another instance counts as success.
func (s *Service) EnsureAccount(ctx context.Context, account CreateUserDTO) (*UserDTO, error) {
	if account.ID == uuid.Nil || strings.TrimSpace(account.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "system account needs an id and email")
	}
	existing, err := s.repo.FindByID(ctx, account.ID)
	switch {
	case err == nil:
		return FromModel(existing), nil
	case !dbpkg.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load system account")
	}
	created, err := s.repo.Create(ctx, account)
	if dbpkg.IsUniqueViolation(err, "") {
		if created, err = s.repo.FindByID(ctx, account.ID); err == nil {
			return FromModel(created), nil
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create system account")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "user_id", created.ID.String()), "system account created")
	}
	return FromModel(created), nil
}

type StatusInput struct {
	Actor  auth.Actor
	UserID uuid.UUID
	Status enums.UserStatus
	Reason string
}

// SetStatus moves an account between active, suspended and deleted.
//   - only operators may call it, and never on themselves;
//   - staff cannot change another operator's account, admins can;
//   - deleted is final.
//
// Setting the current status again is a no-op and is not logged.
func (s *Service) SetStatus(ctx context.Context, in StatusInput) (*UserDTO, error) {
	switch {
	case !in.Actor.IsOperator():
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	case !in.Status.IsValid():
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown user status %q", in.Status)
	case in.UserID == in.Actor.UserID:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot change your own status")
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is too long").
			WithDetails(map[string]any{"max_length": maxReasonLength})
	}

	user, err := s.repo.FindByID(ctx, in.UserID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if operatorAccount(user.Roles) && !in.Actor.Has(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may change operator accounts")
	}

	from := user.Status
	switch {
	case from == in.Status:
		return FromModel(user), nil
	case from == enums.UserStatusDeleted:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deleted accounts cannot be changed").
			WithDetails(map[string]any{"status": from})
	}

	if err := s.repo.UpdateStatus(ctx, user.ID, in.Status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user status")
	}
	user.Status = in.Status

	details := map[string]any{"from": string(from), "to": string(in.Status)}
	if reason != "" {
		details["reason"] = reason
	}
	if s.adminLogs != nil {
		s.adminLogs.Record(ctx, adminlogs.Entry{
			AdminID: in.Actor.UserID,
			UserID:  user.ID,
			Action:  "user_status_changed",
			Details: details,
		})
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"target_user_id": user.ID.String(),
			"from":           from,
			"to":             in.Status,
		}), fmt.Sprintf("user status set to %s", in.Status))
	}
	return FromModel(user), nil
}

func operatorAccount(roles []string) bool {
	for _, r := range roles {
		if enums.UserRole(r).IsOperator() {
			return true
		}
	}
	return false
}
