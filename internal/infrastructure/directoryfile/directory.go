// Package directoryfile loads organization and user fixtures from YAML into the directory.
package directoryfile

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	"github.com/garyjia/budget-approval/pkg/utils"
)

// Organization is one org node in a directory file
type Organization struct {
	ID     string `yaml:"id" json:"id" validate:"required"`
	Name   string `yaml:"name" json:"name"`
	Parent string `yaml:"parent" json:"parent"`
}

// User is one user entry in a directory file
type User struct {
	ID    string   `yaml:"id" json:"id" validate:"required"`
	Name  string   `yaml:"name" json:"name" validate:"required"`
	Email string   `yaml:"email" json:"email" validate:"omitempty,email"`
	Org   string   `yaml:"org" json:"org"`
	Roles []string `yaml:"roles" json:"roles"`
}

// File is the decoded directory fixture
type File struct {
	Organizations []Organization `yaml:"organizations" json:"organizations" validate:"dive"`
	Users         []User         `yaml:"users" json:"users" validate:"dive"`
}

// Summary counts what Apply wrote
type Summary struct {
	Organizations int
	Users         int
}

// Load reads and validates a directory file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML directory document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal directory file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field rules, duplicate ids and parent references.
// Parents and user orgs must be declared in the same file.
func (f *File) Validate() error {
	if fields := utils.ValidateStruct(f); fields != nil {
		return fmt.Errorf("invalid directory file: %s", formatFields(fields))
	}

	orgs := make(map[string]string, len(f.Organizations))
	for _, org := range f.Organizations {
		if _, dup := orgs[org.ID]; dup {
			return fmt.Errorf("duplicate organization id %q", org.ID)
		}
		orgs[org.ID] = org.Parent
	}
	for id, parent := range orgs {
		if parent == "" {
			continue
		}
		if _, ok := orgs[parent]; !ok {
			return fmt.Errorf("organization %q references unknown parent %q", id, parent)
		}
		if hasCycle(orgs, id) {
			return fmt.Errorf("organization %q is part of a parent cycle", id)
		}
	}

	users := make(map[string]struct{}, len(f.Users))
	for _, user := range f.Users {
		if _, dup := users[user.ID]; dup {
			return fmt.Errorf("duplicate user id %q", user.ID)
		}
		users[user.ID] = struct{}{}
		if user.Org != "" {
			if _, ok := orgs[user.Org]; !ok {
				return fmt.Errorf("user %q references unknown organization %q", user.ID, user.Org)
			}
		}
	}
	return nil
}

// Apply upserts every organization and user in one transaction
func Apply(ctx context.Context, tx port.TransactionManager, dir port.DirectoryWriter, f *File, logger *zap.Logger) (Summary, error) {
	var summary Summary
	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, org := range f.Organizations {
			if err := dir.UpsertOrganization(ctx, &entity.Organization{
				ID:          org.ID,
				Name:        org.Name,
				ParentOrgID: org.Parent,
			}); err != nil {
				return fmt.Errorf("organization %s: %w", org.ID, err)
			}
			summary.Organizations++
		}
		for _, user := range f.Users {
			if err := dir.UpsertUser(ctx, &entity.UserProfile{
				ID:        user.ID,
				Name:      user.Name,
				Email:     user.Email,
				OrgID:     user.Org,
				RoleNames: user.Roles,
			}); err != nil {
				return fmt.Errorf("user %s: %w", user.ID, err)
			}
			summary.Users++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	logger.Info("Directory applied",
		zap.Int("organizations", summary.Organizations),
		zap.Int("users", summary.Users))
	return summary, nil
}

func hasCycle(parents map[string]string, start string) bool {
	seen := map[string]struct{}{start: {}}
	for cur := parents[start]; cur != ""; cur = parents[cur] {
		if _, ok := seen[cur]; ok {
			return true
		}
		seen[cur] = struct{}{}
	}
	return false
}

func formatFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for field, msg := range fields {
		parts = append(parts, field+" "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
