package dashboard

import "github.com/trezcool/shule/core/user"

// Widgets
const (
	WidgetStudentCount         = "student-count"
	WidgetPaymentSummary       = "payment-summary"
	WidgetRegistrationPayments = "registration-payments"
	WidgetAttendanceToday      = "attendance-today"
	WidgetExamPerformance      = "exam-performance"
	WidgetDisciplineOverview   = "discipline-overview"
	WidgetRecentIncidents      = "recent-incidents"
	WidgetUpcomingSessions     = "upcoming-sessions"
	WidgetHomeworkGrading      = "homework-grading"
	WidgetMyAttendance         = "my-attendance"
	WidgetMyResults            = "my-results"
	WidgetMyBehavior           = "my-behavior"
)

var (
	roleWidgets = map[string][]string{
		user.DashboardAdmin: {
			WidgetStudentCount, WidgetPaymentSummary, WidgetAttendanceToday,
			WidgetExamPerformance, WidgetDisciplineOverview, WidgetRecentIncidents,
		},
		user.DashboardAccountant: {WidgetPaymentSummary, WidgetRegistrationPayments, WidgetStudentCount},
		user.DashboardCounselor:  {WidgetDisciplineOverview, WidgetRecentIncidents, WidgetUpcomingSessions},
		user.DashboardTeacher:    {WidgetHomeworkGrading, WidgetAttendanceToday, WidgetExamPerformance},
		user.DashboardStudent:    {WidgetMyAttendance, WidgetMyResults, WidgetMyBehavior},
		user.DashboardParent:     {WidgetMyAttendance, WidgetMyResults, WidgetMyBehavior},
	}

	// live widgets are refreshed more often than aggregates
	liveWidgets = []string{WidgetAttendanceToday, WidgetRecentIncidents, WidgetUpcomingSessions}

	// personal widgets depend on the viewer, not only on the branch
	personalWidgets = []string{
		WidgetHomeworkGrading, WidgetUpcomingSessions, WidgetMyAttendance, WidgetMyResults, WidgetMyBehavior,
	}
)

// Catalog lists the widgets of each dashboard role.
type Catalog struct{}

// RoleWidgets returns the widgets of a role in their default order; nil for unknown roles.
func (Catalog) RoleWidgets(role string) []string {
	widgets, ok := roleWidgets[role]
	if !ok {
		return nil
	}
	return append([]string(nil), widgets...)
}

// Allowed reports whether the role's dashboard can show the widget.
func (c Catalog) Allowed(role, widget string) bool {
	for _, w := range roleWidgets[role] {
		if w == widget {
			return true
		}
	}
	return false
}
