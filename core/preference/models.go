package preference

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

// Well-known keys
const (
	KeySelectedBranch     = "selectedBranch"
	KeySystemSettings     = "systemSettings"
	keyDashboardPrefix    = "dashboard-preferences-"
	maxPreferenceByteSize = 64 << 10
)

var keyRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,64}$`)

// DashboardKey is the preference key of a role's dashboard layout.
func DashboardKey(role string) string {
	return keyDashboardPrefix + role
}

// dashboardRole extracts the role of a dashboard preference key.
func dashboardRole(key string) (string, bool) {
	if !strings.HasPrefix(key, keyDashboardPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, keyDashboardPrefix), true
}

func ValidKey(key string) bool {
	return keyRegex.MatchString(key)
}

// SystemSettings are the school-wide settings, readable by every user.
type SystemSettings struct {
	SchoolName      string  `json:"school_name" validate:"required,max=128"`
	Currency        string  `json:"currency" validate:"required,len=3,alpha"`
	AcademicYear    string  `json:"academic_year" validate:"max=16"`
	Term            string  `json:"term" validate:"max=32"`
	PassMarkPercent float64 `json:"pass_mark_percent" validate:"gte=0,lte=100"`
	Timezone        string  `json:"timezone" validate:"required,timezone"`
}

func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		SchoolName:      core.Conf.AppName,
		Currency:        "USD",
		PassMarkPercent: core.Conf.PassMarkPercent,
		Timezone:        "UTC",
	}
}

func (ss *SystemSettings) Validate(validate *validator.Validate) error {
	ss.SchoolName = core.CleanString(ss.SchoolName)
	ss.Currency = strings.ToUpper(core.CleanString(ss.Currency))
	ss.AcademicYear = core.CleanString(ss.AcademicYear)
	ss.Term = core.CleanString(ss.Term)
	ss.Timezone = core.CleanString(ss.Timezone)
	return validate.Struct(ss)
}

// DashboardPreferences is the widget layout of a role's dashboard.
type DashboardPreferences struct {
	Widgets []WidgetPref `json:"widgets" validate:"dive"`
}

type WidgetPref struct {
	Name     string `json:"name" validate:"required"`
	Visible  bool   `json:"visible"`
	Position int    `json:"position" validate:"gte=0"`
}

// Catalog knows which widgets each dashboard role may show.
type Catalog interface {
	RoleWidgets(role string) []string
}

// Preference is a stored JSON value.
type Preference struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
