package user

import (
	"errors"
	"strings"
)

// SignupDTO bootstraps a tenant: the company plus its first admin.
type SignupDTO struct {
	CompanyName string `json:"company_name"`
	Currency    string `json:"currency"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (dto SignupDTO) Validate() error {
	if strings.TrimSpace(dto.CompanyName) == "" {
		return errors.New("company name is required")
	}
	if strings.TrimSpace(dto.Currency) == "" {
		return errors.New("currency is required")
	}
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(dto.Email) == "" {
		return errors.New("email is required")
	}
	if len(dto.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// CreateUserDTO is an admin creating an account. The initial password is
// generated server-side and mailed to the user.
type CreateUserDTO struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	ManagerID *int64 `json:"manager_id,omitempty"`
}

func (dto CreateUserDTO) Validate() error {
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(dto.Email) == "" {
		return errors.New("email is required")
	}
	if !dto.Role.Valid() {
		return errors.New("role must be admin, manager or employee")
	}
	return nil
}

type UpdateRoleDTO struct {
	Role Role `json:"role"`
}

func (dto UpdateRoleDTO) Validate() error {
	if !dto.Role.Valid() {
		return errors.New("role must be admin, manager or employee")
	}
	return nil
}

type UpdateManagerDTO struct {
	ManagerID *int64 `json:"manager_id"`
}
