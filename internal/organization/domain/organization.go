package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
)

var (
	ErrNotFound     = errors.New("organization not found")
	ErrSlugTaken    = errors.New("organization slug already in use")
	ErrInvalidName  = errors.New("organization name must be at least 3 characters long")
	ErrInvalidSlug  = errors.New("slug must contain only lowercase letters, numbers, and hyphens")
	ErrEmptyPatch   = errors.New("no organization fields to update")
	errSlugRequired = errors.New("slug could not be derived from name")
)

const minNameLength = 3

// Organization is a tenant. Every organization has exactly one owner membership.
type Organization struct {
	ID          string
	Slug        string
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Patch carries the fields of a partial update; nil fields are left unchanged.
type Patch struct {
	Name        *string
	Slug        *string
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Slug == nil && p.Description == nil
}

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9-]+$`)
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s_-]`)
	slugSeparators = regexp.MustCompile(`[\s_]+`)
	slugDashes     = regexp.MustCompile(`-+`)
)

// Slugify derives a URL-friendly slug from an organization name: lower-cased, characters
// other than letters, digits, whitespace and hyphens removed, separators turned into
// hyphens, and runs of hyphens collapsed.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSeparators.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ValidSlug reports whether s may be stored as a slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Validate normalizes and validates the organization for persistence. An empty slug is
// derived from the name.
func (o *Organization) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if len([]rune(o.Name)) < minNameLength {
		return ErrInvalidName
	}
	if o.Slug == "" {
		o.Slug = Slugify(o.Name)
		if o.Slug == "" {
			return errors.Join(ErrInvalidSlug, errSlugRequired)
		}
	}
	if !ValidSlug(o.Slug) {
		return ErrInvalidSlug
	}
	if o.Description != nil && strings.TrimSpace(*o.Description) == "" {
		o.Description = nil
	}
	return nil
}

// Apply copies the set fields of p onto o and revalidates it.
func (o *Organization) Apply(p Patch) error {
	if p.Empty() {
		return ErrEmptyPatch
	}
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Slug != nil {
		if *p.Slug == "" {
			return ErrInvalidSlug
		}
		o.Slug = *p.Slug
	}
	if p.Description != nil {
		d := *p.Description
		o.Description = &d
	}
	return o.Validate()
}

// Membership is an organization seen from one member, with that member's role.
type Membership struct {
	Organization
	Role     membershipdomain.Role
	JoinedAt time.Time
}
