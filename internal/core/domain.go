package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Emission Field = iota
	MonthlyUsage
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// UnassignedDepartment groups records without a department.
const UnassignedDepartment = "Unassigned"

type (
	// Field identifies a summable column of a usage record.
	Field int

	Role string

	Theme string

	// UsageRecord is one row of the electricity usage table. Emission and
	// MonthlyUsage are nil when the row leaves them empty.
	UsageRecord struct {
		Department   string   `json:"department" yaml:"department"`
		Month        string   `json:"month" yaml:"month"`
		MonthlyUsage *float64 `json:"monthly_usage" yaml:"monthly_usage"`
		Emission     *float64 `json:"emission" yaml:"emission"`
	}

	// TotalsSummary holds the KPI card values for a selected period.
	TotalsSummary struct {
		Emissions         float64 `json:"emissions"`
		Electricity       float64 `json:"electricity"`
		EmissionsChange   float64 `json:"emissionsChange"`
		ElectricityChange float64 `json:"electricityChange"`
	}

	DepartmentTotal struct {
		Department  string  `json:"department"`
		Emission    float64 `json:"emission"`
		Electricity float64 `json:"electricity"`
	}

	User struct {
		ID           int64
		Email        string
		PasswordHash string
		Role         Role
		CreatedAt    time.Time
	}

	Session struct {
		Token     string
		UserID    int64
		ExpiresAt time.Time
		CreatedAt time.Time
	}
)

var (
	ErrUnknownMonth       = errors.New("unknown month")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
	ErrNotAdmin           = errors.New("admin role required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrUserNotFound       = errors.New("user not found")
)

// Fields lists every summable field.
var Fields = []Field{Emission, MonthlyUsage}

func (f Field) String() string {
	switch f {
	case Emission:
		return "emission"
	case MonthlyUsage:
		return "monthly_usage"
	default:
		return "unknown"
	}
}

// Value returns the record's value for f, or 0 when it is missing.
func (r UsageRecord) Value(f Field) float64 {
	var v *float64
	switch f {
	case Emission:
		v = r.Emission
	case MonthlyUsage:
		v = r.MonthlyUsage
	}
	if v == nil {
		return 0
	}
	return *v
}

// DepartmentName returns the department, or UnassignedDepartment when blank.
func (r UsageRecord) DepartmentName() string {
	d := strings.TrimSpace(r.Department)
	if d == "" {
		return UnassignedDepartment
	}
	return d
}

// Float returns a pointer to v, for building records with present values.
func Float(v float64) *float64 {
	return &v
}

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseTheme returns the theme named by s, defaulting to dark.
func ParseTheme(s string) Theme {
	if Theme(strings.ToLower(strings.TrimSpace(s))) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// NormalizeEmail lowercases and trims an email address and performs a
// minimal shape check.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "", ErrInvalidEmail
	}
	if len(email) > 254 {
		return "", ErrInvalidEmail
	}
	return email, nil
}
