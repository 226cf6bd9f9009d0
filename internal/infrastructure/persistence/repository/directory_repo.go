package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/internal/infrastructure/persistence/sqlite"
)

// maxOrgDepth bounds the parent walk so a cycle in the org table cannot loop forever
const maxOrgDepth = 64

// DirectoryRepository implements port.Directory and port.DirectoryWriter
// over the users, user_roles and organizations tables
type DirectoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sql.DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// ResolveProfiles loads the profiles and roles of ids. Unknown ids are absent from the result.
func (r *DirectoryRepository) ResolveProfiles(ctx context.Context, ids []string) (map[string]*entity.UserProfile, error) {
	profiles := make(map[string]*entity.UserProfile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT id, name, email, org_id FROM users WHERE id IN (` + placeholders + `)`
	users, err := r.queryUsers(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		profiles[u.ID] = u
	}
	return profiles, nil
}

// ResolveOrgRoot walks parent pointers from orgID to its top-most ancestor
func (r *DirectoryRepository) ResolveOrgRoot(ctx context.Context, orgID string) (string, error) {
	if orgID == "" {
		return "", nil
	}

	query := `SELECT parent_org_id FROM organizations WHERE id = ?`
	current := orgID
	for depth := 0; depth < maxOrgDepth; depth++ {
		var parent string
		err := r.getExecutor(ctx).QueryRowContext(ctx, query, current).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return current, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to resolve org root: %w", err)
		}
		if parent == "" || parent == current {
			return current, nil
		}
		current = parent
	}

	r.logger.Warn("Organization hierarchy too deep, stopping walk",
		zap.String("org_id", orgID),
		zap.String("stopped_at", current))
	return current, nil
}

// FindUsersByRoleKeyword returns users with a role name containing keyword, case-insensitively
func (r *DirectoryRepository) FindUsersByRoleKeyword(ctx context.Context, keyword string) ([]*entity.UserProfile, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}

	query := `
		SELECT DISTINCT u.id, u.name, u.email, u.org_id
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE LOWER(ur.role_name) LIKE '%' || LOWER(?) || '%'
		ORDER BY u.id
	`
	return r.queryUsers(ctx, query, keyword)
}

// UpsertOrganization inserts or replaces an organization node
func (r *DirectoryRepository) UpsertOrganization(ctx context.Context, org *entity.Organization) error {
	query := `
		INSERT INTO organizations (id, name, parent_org_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, parent_org_id = excluded.parent_org_id
	`
	if _, err := r.getExecutor(ctx).ExecContext(ctx, query, org.ID, org.Name, org.ParentOrgID); err != nil {
		return fmt.Errorf("failed to upsert organization: %w", err)
	}
	return nil
}

// UpsertUser inserts or replaces a user and its role set
func (r *DirectoryRepository) UpsertUser(ctx context.Context, user *entity.UserProfile) error {
	exec := r.getExecutor(ctx)

	query := `
		INSERT INTO users (id, name, email, org_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, org_id = excluded.org_id
	`
	if _, err := exec.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.OrgID); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, user.ID); err != nil {
		return fmt.Errorf("failed to reset user roles: %w", err)
	}
	for _, role := range user.RoleNames {
		if _, err := exec.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role_name) VALUES (?, ?)`, user.ID, role); err != nil {
			return fmt.Errorf("failed to insert user role: %w", err)
		}
	}
	return nil
}

func (r *DirectoryRepository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*entity.UserProfile, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	var users []*entity.UserProfile
	for rows.Next() {
		var u entity.UserProfile
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.OrgID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.attachRoles(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *DirectoryRepository) attachRoles(ctx context.Context, users []*entity.UserProfile) error {
	if len(users) == 0 {
		return nil
	}

	byID := make(map[string]*entity.UserProfile, len(users))
	args := make([]interface{}, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		args = append(args, u.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(users)), ",")

	rows, err := r.getExecutor(ctx).QueryContext(ctx,
		`SELECT user_id, role_name FROM user_roles WHERE user_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return fmt.Errorf("failed to scan user role: %w", err)
		}
		if u, ok := byID[userID]; ok {
			u.RoleNames = append(u.RoleNames, role)
		}
	}
	for _, u := range users {
		sort.Strings(u.RoleNames)
	}
	return rows.Err()
}

func (r *DirectoryRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.GetExecutor(ctx, r.db)
}

// Verify interface compliance
var (
	_ port.Directory       = (*DirectoryRepository)(nil)
	_ port.DirectoryWriter = (*DirectoryRepository)(nil)
)
