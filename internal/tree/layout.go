package tree

import (
	"fmt"
	"path/filepath"
	"time"
)

// RootDirName is the directory under the base path that holds every run.
const RootDirName = "Grafana_backup"

// TimestampLayout renders run timestamps as ddmmyyHHMMSS.
const TimestampLayout = "020106150405"

// Layout is the directory set of one backup run.
type Layout struct {
	Root                   string
	Summary                string
	Alerts                 string
	AlertsAll              string
	Dashboards             string
	Datasources            string
	ContactPointsAll       string
	NotificationPolicyTree string
	MuteTimingsAll         string
	Templates              string
}

// RunDirName returns "<environment>_<ddmmyyHHMMSS>".
func RunDirName(environment string, ts time.Time) string {
	return fmt.Sprintf("%s_%s", environment, ts.Format(TimestampLayout))
}

// NewLayout builds the run tree rooted at <base>/Grafana_backup/<environment>_<timestamp>.
func NewLayout(base, environment string, ts time.Time) Layout {
	root := filepath.Join(base, RootDirName, RunDirName(environment, ts))
	return Layout{
		Root:                   root,
		Summary:                filepath.Join(root, "Summary"),
		Alerts:                 filepath.Join(root, "grafana_alerts"),
		AlertsAll:              filepath.Join(root, "grafana_alerts", "all"),
		Dashboards:             filepath.Join(root, "grafana_dashboards"),
		Datasources:            filepath.Join(root, "grafana_datasource"),
		ContactPointsAll:       filepath.Join(root, "grafana_contactPoints", "All"),
		NotificationPolicyTree: filepath.Join(root, "grafana_notificationPolicyTree"),
		MuteTimingsAll:         filepath.Join(root, "grafana_muteTimings", "All"),
		Templates:              filepath.Join(root, "grafana_templates"),
	}
}

// Dirs lists the static directories in creation order. Alerts is covered by AlertsAll.
func (l Layout) Dirs() []string {
	return []string{
		l.Root,
		l.Summary,
		l.AlertsAll,
		l.Dashboards,
		l.Datasources,
		l.ContactPointsAll,
		l.NotificationPolicyTree,
		l.MuteTimingsAll,
		l.Templates,
	}
}
