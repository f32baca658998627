// Package quota implements the AI usage quota ledger: per-user, per-day
// message and token counters checked against role-based daily limits.
// This is a pure domain layer with zero external dependencies.
package quota

import (
	"math"
	"strings"

	"github.com/nextstep-hub/learning-engine/internal/domain/shared"
)

// Role is a user's platform role. Roles are ordered by authority level:
// Guest < FreeMember < PremiumMember < Mentor < Admin < SuperAdmin.
type Role string

const (
	RoleGuest         Role = "guest"
	RoleFreeMember    Role = "free_member"
	RolePremiumMember Role = "premium_member"
	RoleMentor        Role = "mentor"
	RoleAdmin         Role = "admin"
	RoleSuperAdmin    Role = "super_admin"
)

// roleLevels maps each role to its numeric authority level.
var roleLevels = map[Role]int{
	RoleGuest:         0,
	RoleFreeMember:    1,
	RolePremiumMember: 2,
	RoleMentor:        3,
	RoleAdmin:         4,
	RoleSuperAdmin:    5,
}

// IsValid checks whether the role is known.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the role's numeric authority level.
func (r Role) Level() int {
	return roleLevels[r]
}

// HasAuthorityOf checks if the role has at least the target role's authority.
func (r Role) HasAuthorityOf(target Role) bool {
	return roleLevels[r] >= roleLevels[target]
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a role string, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", shared.ErrUnknownRole
	}
	return r, nil
}

// Unlimited marks a limit with no daily bound.
const Unlimited = math.MaxInt32

// DailyLimit is a role's per-day AI usage allowance.
type DailyLimit struct {
	Messages int
	Tokens   int
}

// IsUnlimited checks whether the limit has no daily bound.
func (l DailyLimit) IsUnlimited() bool {
	return l.Messages == Unlimited
}

// dailyLimits is the fixed role→limit table. Kept as an explicit lookup so
// tests can assert the exact numbers rather than exercising branch logic.
var dailyLimits = map[Role]DailyLimit{
	RoleGuest:         {Messages: 0, Tokens: 0},
	RoleFreeMember:    {Messages: 10, Tokens: 50_000},
	RolePremiumMember: {Messages: 100, Tokens: 500_000},
	RoleMentor:        {Messages: 200, Tokens: 1_000_000},
	RoleAdmin:         {Messages: Unlimited, Tokens: Unlimited},
	RoleSuperAdmin:    {Messages: Unlimited, Tokens: Unlimited},
}

// LimitFor returns the daily limit for a role. Unknown roles get the guest
// limit (no usage).
func LimitFor(role Role) DailyLimit {
	if l, ok := dailyLimits[role]; ok {
		return l
	}
	return dailyLimits[RoleGuest]
}
