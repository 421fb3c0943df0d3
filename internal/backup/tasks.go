package backup

import (
	"context"
	"path/filepath"

	"grafana-backup/internal/config"
	"grafana-backup/internal/exporter"
	"grafana-backup/internal/tree"
)

// Grafana API paths.
const (
	pathAlertRules          = "api/v1/provisioning/alert-rules"
	pathAlertRulesExport    = "api/v1/provisioning/alert-rules/export"
	pathContactPoints       = "api/v1/provisioning/contact-points"
	pathContactPointsExport = "api/v1/provisioning/contact-points/export"
	pathPolicies            = "api/v1/provisioning/policies"
	pathPoliciesExport      = "api/v1/provisioning/policies/export"
	pathMuteTimings         = "api/v1/provisioning/mute-timings"
	pathMuteTimingsExport   = "api/v1/provisioning/mute-timings/export"
	pathTemplates           = "api/v1/provisioning/templates"
	pathDashboardSearch     = "api/search?query=&type=dash-db"
	pathDashboardByUID      = "api/dashboards/uid"
	pathDatasources         = "api/datasources"
	pathDatasourceByUID     = "api/datasources/uid"
)

// task is one step of the category table.
type task struct {
	category string
	run      func(ctx context.Context, e *exporter.Exporter) exporter.Result
}

func simpleTask(category, endpoint, dest string, format exporter.Format) task {
	return task{
		category: category,
		run: func(ctx context.Context, e *exporter.Exporter) exporter.Result {
			return e.Export(ctx, category, endpoint, dest, format)
		},
	}
}

func collectionTask(c exporter.Collection) task {
	return task{
		category: c.Category,
		run: func(ctx context.Context, e *exporter.Exporter) exporter.Result {
			return e.ExportCollection(ctx, c)
		},
	}
}

// plan returns the category table in execution order. url turns an API
// path into an absolute endpoint URL.
func plan(url func(path string) string, l tree.Layout) []task {
	return []task{
		simpleTask(config.CategoryAlerts, url(pathAlertRules),
			filepath.Join(l.AlertsAll, "alert-rules.json"), exporter.Structured),
		simpleTask(config.CategoryAlerts, url(pathAlertRulesExport),
			filepath.Join(l.AlertsAll, "alert-rules-export.json"), exporter.Structured),
		collectionTask(exporter.Collection{
			Category:   config.CategoryAlerts,
			ListURL:    url(pathAlertRules),
			DestDir:    l.Alerts,
			IDField:    "uid",
			TitleField: "title",
			Foldered:   true,
			FolderPath: []string{"folderUID"},
			// AlertsAll holds the list exports.
			ReservedFolders: []string{filepath.Base(l.AlertsAll)},
		}),

		simpleTask(config.CategoryContactPoints, url(pathContactPointsExport),
			filepath.Join(l.ContactPointsAll, "contactPointsExport.yaml"), exporter.RawText),
		simpleTask(config.CategoryContactPoints, url(pathContactPoints),
			filepath.Join(l.ContactPointsAll, "contactPointsExport.json"), exporter.Structured),

		simpleTask(config.CategoryNotificationPolicy, url(pathPoliciesExport),
			filepath.Join(l.NotificationPolicyTree, "notificationPolicyTreeExport.yaml"), exporter.RawText),
		simpleTask(config.CategoryNotificationPolicy, url(pathPolicies),
			filepath.Join(l.NotificationPolicyTree, "notificationPolicyTreeExport.json"), exporter.Structured),

		simpleTask(config.CategoryMuteTimings, url(pathMuteTimingsExport),
			filepath.Join(l.MuteTimingsAll, "muteTimingsExport.yaml"), exporter.RawText),
		simpleTask(config.CategoryMuteTimings, url(pathMuteTimings),
			filepath.Join(l.MuteTimingsAll, "muteTimingsExport.json"), exporter.Structured),

		simpleTask(config.CategoryTemplates, url(pathTemplates),
			filepath.Join(l.Templates, "templatesExport.json"), exporter.Structured),

		collectionTask(exporter.Collection{
			Category:   config.CategoryDashboards,
			ListURL:    url(pathDashboardSearch),
			DetailURL:  url(pathDashboardByUID),
			DestDir:    l.Dashboards,
			IDField:    "uid",
			TitleField: "title",
			Foldered:   true,
			FolderPath: exporter.DefaultFolderPath,
		}),

		simpleTask(config.CategoryDatasources, url(pathDatasources),
			filepath.Join(l.Summary, "datasources.csv"), exporter.RawText),
		collectionTask(exporter.Collection{
			Category:   config.CategoryDatasources,
			ListURL:    url(pathDatasources),
			DetailURL:  url(pathDatasourceByUID),
			DestDir:    l.Datasources,
			IDField:    "uid",
			TitleField: "name",
		}),
	}
}
