package entity

import "strings"

// UserProfile is the directory view of a user
type UserProfile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	OrgID     string   `json:"org_id,omitempty"`
	RoleNames []string `json:"role_names,omitempty"`
}

// HasRoleContaining reports whether any role name contains keyword, ignoring case
func (u *UserProfile) HasRoleContaining(keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return false
	}
	for _, role := range u.RoleNames {
		if strings.Contains(strings.ToLower(role), keyword) {
			return true
		}
	}
	return false
}

// DisplayName returns the name, falling back to email and then id
func (u *UserProfile) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// Organization is a node of the org hierarchy
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ParentOrgID string `json:"parent_org_id,omitempty"`
}
