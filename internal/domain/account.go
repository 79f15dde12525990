/**
 * @description
 * This file defines the account domain model for the reseller-service: the
 * account entity itself, the role hierarchy (operator -> master -> reseller ->
 * client) and the authorization predicates every orchestrator operation
 * consults. Roles are an explicit enumerated type rather than ad hoc string
 * comparisons so the hierarchy rules live in exactly one place.
 *
 * @notes
 * - Display labels keep the panel's original Portuguese wording (Revenda,
 *   Cliente) because transaction descriptions and the UI reference them.
 * - Credit expiry is compared at day granularity: an account expiring today is
 *   still active until the day rolls over.
 */

package domain

import "time"

// Role identifies an account's tier in the reseller hierarchy.
type Role string

const (
	RoleOperator Role = "operator"
	RoleMaster   Role = "master"
	RoleReseller Role = "reseller"
	RoleClient   Role = "client"
)

// ParseRole maps a wire value to a Role. The second return is false for
// unknown values.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOperator, RoleMaster, RoleReseller, RoleClient:
		return Role(s), true
	}
	return "", false
}

// Label returns the display label used in transaction descriptions and the UI.
func (r Role) Label() string {
	switch r {
	case RoleOperator:
		return "Admin"
	case RoleMaster:
		return "Master"
	case RoleReseller:
		return "Revenda"
	case RoleClient:
		return "Cliente"
	}
	return string(r)
}

// CanCreate reports whether an account with role r may provision an account
// with the target role. Operators may create any role, masters anything below
// operator, resellers only clients, clients nothing.
func (r Role) CanCreate(target Role) bool {
	switch r {
	case RoleOperator:
		return true
	case RoleMaster:
		return target == RoleMaster || target == RoleReseller || target == RoleClient
	case RoleReseller:
		return target == RoleClient
	}
	return false
}

// CanManageCredits reports whether the caller may move credit to or from an
// account with the given creator pointer. Operators always may; everyone else
// only for accounts they directly created.
func CanManageCredits(callerRole Role, callerID int64, targetCreatorID *int64) bool {
	if callerRole == RoleOperator {
		return true
	}
	return targetCreatorID != nil && *targetCreatorID == callerID
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusInactive  AccountStatus = "inactive"
	StatusSuspended AccountStatus = "suspended"
)

// ParseStatus maps a wire value to an AccountStatus.
func ParseStatus(s string) (AccountStatus, bool) {
	switch AccountStatus(s) {
	case StatusActive, StatusInactive, StatusSuspended:
		return AccountStatus(s), true
	}
	return "", false
}

// CreditValidityDays is the validity window granted on creation and renewal.
const CreditValidityDays = 30

// ProvisioningCost is the credit price of one billable provisioning action.
const ProvisioningCost int64 = 1

// StatusForExpiry derives the status implied by a credit expiry date:
// active while the expiry day has not passed, inactive afterwards.
func StatusForExpiry(expiry time.Time, now time.Time) AccountStatus {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if expiry.Before(today) {
		return StatusInactive
	}
	return StatusActive
}

// Account represents one row of the accounts table.
type Account struct {
	ID            int64         `json:"id"`
	Username      string        `json:"username"`
	PasswordHash  string        `json:"-"`
	Role          Role          `json:"role"`
	CreatorID     *int64        `json:"creator_id,omitempty"`
	Status        AccountStatus `json:"status"`
	Email         *string       `json:"email,omitempty"`
	Phone         *string       `json:"phone,omitempty"`
	Plan          *string       `json:"plan,omitempty"`
	CreditExpiry  *time.Time    `json:"credit_expiry,omitempty"`
	BillingExpiry *time.Time    `json:"billing_expiry,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Balance represents the credit balance row of a non-operator account.
// Operators hold no balance row; they are treated as unlimited everywhere.
type Balance struct {
	AccountID int64     `json:"account_id"`
	Balance   int64     `json:"balance"`
	Unlimited bool      `json:"unlimited"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountView decorates an account for listings with data resolved through
// the batched lookups (creator username, display label).
type AccountView struct {
	Account
	RoleLabel       string  `json:"role_label"`
	CreatorUsername *string `json:"creator_username,omitempty"`
}

// AccountListOptions controls filtering and pagination for account listings.
type AccountListOptions struct {
	CreatorID *int64
	Role      string
	Status    string
	Search    string
	Limit     int
	Offset    int
}

// CreateAccountRequest is the DTO for provisioning a new account.
type CreateAccountRequest struct {
	Username string  `json:"username" validate:"required,min=3,max=64"`
	Password string  `json:"password" validate:"required,min=6,max=128"`
	Role     string  `json:"role" validate:"required,oneof=operator master reseller client"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Plan     *string `json:"plan,omitempty" validate:"omitempty,max=64"`
	Trial    bool    `json:"trial,omitempty"`
}

// UpdateAccountRequest is the DTO for partial account updates. Nil fields are
// left untouched.
type UpdateAccountRequest struct {
	Email         *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	Plan          *string    `json:"plan,omitempty" validate:"omitempty,max=64"`
	Password      *string    `json:"password,omitempty" validate:"omitempty,min=6,max=128"`
	Status        *string    `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended"`
	CreditExpiry  *time.Time `json:"credit_expiry,omitempty"`
	BillingExpiry *time.Time `json:"billing_expiry,omitempty"`
}

// ReassignCreatorRequest moves an account under a different creator.
type ReassignCreatorRequest struct {
	NewCreatorID int64 `json:"new_creator_id" validate:"required"`
}
