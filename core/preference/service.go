package preference

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("preference not found")
	ErrInvalidKey    = errors.New("invalid preference key")
	ErrInvalidValue  = errors.New("preference value must be valid JSON")
	ErrValueTooLarge = errors.New("preference value is too large")
	ErrUnknownWidget = errors.New("unknown widget")
)

type (
	Repository interface {
		GetPreference(ctx context.Context, userID, key string) (json.RawMessage, error)
		QueryPreferences(ctx context.Context, userID string) ([]Preference, error)
		SetPreference(ctx context.Context, userID, key string, value json.RawMessage) error
		DeletePreference(ctx context.Context, userID, key string) error

		// GetSetting & SetSetting manage system-wide values.
		GetSetting(ctx context.Context, key string) (json.RawMessage, error)
		SetSetting(ctx context.Context, key string, value json.RawMessage) error
	}

	Service struct {
		repo     Repository
		catalog  Catalog
		validate *validator.Validate
	}
)

func NewService(repo Repository, catalog Catalog, validate *validator.Validate) *Service {
	return &Service{repo: repo, catalog: catalog, validate: validate}
}

func (svc *Service) Get(ctx context.Context, userID, key string) (json.RawMessage, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	return svc.repo.GetPreference(ctx, userID, key)
}

func (svc *Service) Query(ctx context.Context, userID string) ([]Preference, error) {
	prefs, err := svc.repo.QueryPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Key < prefs[j].Key })
	return prefs, nil
}

// Set stores a JSON value under key. Dashboard layouts are checked against the widget catalog and
// `selectedBranch` must be a string or null.
func (svc *Service) Set(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	if !ValidKey(key) || key == KeySystemSettings {
		return nil, core.NewFieldValidationError("key", ErrInvalidKey.Error())
	}
	value = bytes.TrimSpace(value)
	if len(value) > maxPreferenceByteSize {
		return nil, core.NewFieldValidationError("value", ErrValueTooLarge.Error())
	}
	if len(value) == 0 || !json.Valid(value) {
		return nil, core.NewFieldValidationError("value", ErrInvalidValue.Error())
	}

	if role, ok := dashboardRole(key); ok {
		var prefs DashboardPreferences
		if err := json.Unmarshal(value, &prefs); err != nil {
			return nil, core.NewFieldValidationError("value", "invalid dashboard preferences")
		}
		if err := svc.validateDashboard(role, prefs); err != nil {
			return nil, err
		}
		value, _ = json.Marshal(prefs)
	}
	if key == KeySelectedBranch {
		var branchID *string
		if err := json.Unmarshal(value, &branchID); err != nil {
			return nil, core.NewFieldValidationError("value", "selected branch must be a branch ID or null")
		}
	}

	if err := svc.repo.SetPreference(ctx, userID, key, value); err != nil {
		return nil, errors.Wrap(err, "saving preference")
	}
	return value, nil
}

func (svc *Service) Delete(ctx context.Context, userID, key string) error {
	if !ValidKey(key) {
		return ErrNotFound
	}
	return svc.repo.DeletePreference(ctx, userID, key)
}

// SelectedBranch returns the branch the user last selected, "" if none.
func (svc *Service) SelectedBranch(ctx context.Context, userID string) (string, error) {
	raw, err := svc.repo.GetPreference(ctx, userID, KeySelectedBranch)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return "", nil
		}
		return "", err
	}
	var branchID *string
	if err = json.Unmarshal(raw, &branchID); err != nil || branchID == nil {
		return "", nil
	}
	return *branchID, nil
}

func (svc *Service) validateDashboard(role string, prefs DashboardPreferences) error {
	known := svc.catalog.RoleWidgets(role)
	if known == nil {
		return core.NewFieldValidationError("key", "unknown dashboard role "+role)
	}
	if err := svc.validate.Struct(prefs); err != nil {
		return err
	}
	seen := make(map[string]bool, len(prefs.Widgets))
	for _, w := range prefs.Widgets {
		if !core.StringInSlice(w.Name, known) {
			return core.NewFieldValidationError("widgets", ErrUnknownWidget.Error()+" "+w.Name)
		}
		if seen[w.Name] {
			return core.NewFieldValidationError("widgets", "duplicate widget "+w.Name)
		}
		seen[w.Name] = true
	}
	return nil
}

// DefaultDashboard lists every widget of the role, visible, in catalog order.
func (svc *Service) DefaultDashboard(role string) DashboardPreferences {
	names := svc.catalog.RoleWidgets(role)
	prefs := DashboardPreferences{Widgets: make([]WidgetPref, 0, len(names))}
	for i, name := range names {
		prefs.Widgets = append(prefs.Widgets, WidgetPref{Name: name, Visible: true, Position: i})
	}
	return prefs
}

// Dashboard returns the user's layout of a role's dashboard: the stored widgets ordered by position,
// followed by the catalog widgets missing from the stored layout.
func (svc *Service) Dashboard(ctx context.Context, userID, role string) (DashboardPreferences, error) {
	def := svc.DefaultDashboard(role)
	raw, err := svc.repo.GetPreference(ctx, userID, DashboardKey(role))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return def, nil
		}
		return DashboardPreferences{}, err
	}

	var stored DashboardPreferences
	if err = json.Unmarshal(raw, &stored); err != nil {
		return def, nil
	}
	known := svc.catalog.RoleWidgets(role)
	out := DashboardPreferences{Widgets: make([]WidgetPref, 0, len(known))}
	seen := make(map[string]bool, len(known))
	sort.SliceStable(stored.Widgets, func(i, j int) bool { return stored.Widgets[i].Position < stored.Widgets[j].Position })
	for _, w := range stored.Widgets {
		if core.StringInSlice(w.Name, known) && !seen[w.Name] {
			seen[w.Name] = true
			out.Widgets = append(out.Widgets, w)
		}
	}
	for _, w := range def.Widgets {
		if !seen[w.Name] {
			out.Widgets = append(out.Widgets, w)
		}
	}
	for i := range out.Widgets {
		out.Widgets[i].Position = i
	}
	return out, nil
}

// SystemSettings returns the stored settings, or the defaults.
func (svc *Service) SystemSettings(ctx context.Context) (SystemSettings, error) {
	settings := DefaultSystemSettings()
	raw, err := svc.repo.GetSetting(ctx, KeySystemSettings)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return settings, nil
		}
		return SystemSettings{}, err
	}
	if err = json.Unmarshal(raw, &settings); err != nil {
		return SystemSettings{}, errors.Wrap(err, "decoding system settings")
	}
	return settings, nil
}

func (svc *Service) SetSystemSettings(ctx context.Context, settings SystemSettings) (SystemSettings, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return SystemSettings{}, errors.Wrap(err, "encoding system settings")
	}
	if err = svc.repo.SetSetting(ctx, KeySystemSettings, raw); err != nil {
		return SystemSettings{}, errors.Wrap(err, "saving system settings")
	}
	return settings, nil
}
