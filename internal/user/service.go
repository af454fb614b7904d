package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/core/events"
	"golang.org/x/crypto/bcrypt"
)

type Repository interface {
	Create(u *User) error
	GetByID(id int64) (*User, error)
	GetByEmail(email string) (*User, error)
	GetByCompany(companyID int64) ([]*User, error)
	GetTeam(managerID int64) ([]*User, error)
	UpdateRole(id int64, role Role) error
	UpdateManager(id int64, managerID *int64) error
	Delete(id int64) error
}

// CompanyCreator is the slice of the company service signup needs. It hands
// back only the new company's id, keeping this package out of the company
// package's import graph.
type CompanyCreator interface {
	Create(ctx context.Context, name, currency string) (companyID int64, err error)
}

// RuleBootstrapper seeds the company's default approval rule at signup.
type RuleBootstrapper interface {
	EnsureDefault(companyID int64) error
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo       Repository
	companies  CompanyCreator
	rules      RuleBootstrapper
	bus        Publisher
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo Repository, companies CompanyCreator, rules RuleBootstrapper, bus Publisher, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		companies:  companies,
		rules:      rules,
		bus:        bus,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Signup bootstraps a tenant: company, default approval rule and the first
// admin account.
func (s *Service) Signup(ctx context.Context, dto SignupDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	if _, err := s.repo.GetByEmail(normalizeEmail(dto.Email)); err == nil {
		return nil, internal.ErrEmailTaken
	}

	companyID, err := s.companies.Create(ctx, dto.CompanyName, dto.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.rules.EnsureDefault(companyID); err != nil {
		s.logger.Error("failed to seed default approval rule", "error", err, "company_id", companyID)
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	admin := &User{
		Email:        normalizeEmail(dto.Email),
		Name:         dto.Name,
		PasswordHash: string(hash),
		Role:         RoleAdmin,
		CompanyID:    companyID,
	}
	if err := s.repo.Create(admin); err != nil {
		s.logger.Error("failed to create admin user", "error", err, "email", dto.Email)
		return nil, err
	}

	s.logger.Info("tenant bootstrapped",
		"company_id", companyID,
		"admin_id", admin.ID,
		"currency", dto.Currency)
	return admin, nil
}

// CreateUser is an admin creating an account in their own company. The
// generated initial password goes out through the notifier.
func (s *Service) CreateUser(ctx context.Context, admin *User, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	if _, err := s.repo.GetByEmail(normalizeEmail(dto.Email)); err == nil {
		return nil, internal.ErrEmailTaken
	}

	if dto.ManagerID != nil {
		manager, err := s.repo.GetByID(*dto.ManagerID)
		if err != nil {
			return nil, internal.ErrUserNotFound
		}
		if manager.CompanyID != admin.CompanyID {
			return nil, internal.NewValidationError("manager must belong to the same company", internal.ErrCodeValidationFailed)
		}
	}

	tempPassword, err := generatePassword()
	if err != nil {
		return nil, internal.NewInternalError("failed to generate password", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	u := &User{
		Email:        normalizeEmail(dto.Email),
		Name:         dto.Name,
		PasswordHash: string(hash),
		Role:         dto.Role,
		CompanyID:    admin.CompanyID,
		ManagerID:    dto.ManagerID,
	}
	if err := s.repo.Create(u); err != nil {
		s.logger.Error("failed to create user", "error", err, "email", dto.Email)
		return nil, err
	}

	if s.bus != nil {
		event := events.NewUserInvitedEvent(u.ID, u.Email, u.Name, tempPassword)
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish invite event", "error", err, "user_id", u.ID)
		}
	}

	s.logger.Info("user created", "user_id", u.ID, "role", u.Role, "company_id", u.CompanyID)
	return u, nil
}

// UpdateRole changes a user's role. In-flight approval history stays as
// recorded; only future role-based routing sees the change.
func (s *Service) UpdateRole(id int64, role Role) (*User, error) {
	if !role.Valid() {
		return nil, internal.NewValidationError("unknown role", internal.ErrCodeValidationFailed)
	}
	if err := s.repo.UpdateRole(id, role); err != nil {
		s.logger.Error("failed to update role", "error", err, "user_id", id)
		return nil, err
	}
	s.logger.Info("user role updated", "user_id", id, "role", role)
	return s.repo.GetByID(id)
}

// UpdateManager reassigns a user's manager. Self-assignment and cycles in the
// org tree are rejected.
func (s *Service) UpdateManager(id int64, managerID *int64) (*User, error) {
	u, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if managerID != nil {
		if *managerID == id {
			return nil, internal.ErrManagerCycle
		}
		manager, err := s.repo.GetByID(*managerID)
		if err != nil {
			return nil, internal.ErrUserNotFound
		}
		if manager.CompanyID != u.CompanyID {
			return nil, internal.NewValidationError("manager must belong to the same company", internal.ErrCodeValidationFailed)
		}
		if err := s.checkCycle(id, manager); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateManager(id, managerID); err != nil {
		s.logger.Error("failed to update manager", "error", err, "user_id", id)
		return nil, err
	}
	s.logger.Info("user manager updated", "user_id", id)
	return s.repo.GetByID(id)
}

// checkCycle walks up from the proposed manager; hitting the user being
// reassigned means the assignment would close a loop.
func (s *Service) checkCycle(userID int64, manager *User) error {
	seen := map[int64]bool{userID: true}
	current := manager
	for current != nil {
		if seen[current.ID] {
			return internal.ErrManagerCycle
		}
		seen[current.ID] = true
		if current.ManagerID == nil {
			return nil
		}
		next, err := s.repo.GetByID(*current.ManagerID)
		if err != nil {
			return nil
		}
		current = next
	}
	return nil
}

func (s *Service) GetUser(id int64) (*User, error) {
	return s.repo.GetByID(id)
}

func (s *Service) GetUsersByCompany(companyID int64) ([]*User, error) {
	return s.repo.GetByCompany(companyID)
}

func (s *Service) GetTeam(managerID int64) ([]*User, error) {
	return s.repo.GetTeam(managerID)
}

func (s *Service) Delete(id int64) error {
	if err := s.repo.Delete(id); err != nil {
		s.logger.Error("failed to delete user", "error", err, "user_id", id)
		return err
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generatePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
