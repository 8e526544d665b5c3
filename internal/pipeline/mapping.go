package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/models"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
	"github.com/vitalis-app/hwmon/internal/telemetry"
)

// MapMonitors turns every row of the job's mapping source into a monitor of
// the job's monitor type and returns the number of monitors updated.
//
// Attribute and metric values are templates where "$n" is the n-th cell of
// the row. The "id" attribute identifies the monitor; rows without one use
// their index, or update target when the job runs for a single monitor.
// Metric values that are not numbers are skipped.
func MapMonitors(tm *telemetry.Manager, conn *connector.Connector, job *connector.Job, target *models.Monitor, now time.Time) int {
	m := job.Mapping
	table, ok := mappingTable(tm.Namespace(conn.ID), job, m.Source)
	if !ok {
		return 0
	}

	count := 0
	for i, row := range table.Rows {
		attributes := make(map[string]string, len(m.Attributes))
		for name, tmpl := range m.Attributes {
			if value, ok := expand(tmpl, row); ok {
				attributes[name] = value
			}
		}

		id := attributes[models.AttributeID]
		var monitorID string
		switch {
		case id != "":
			monitorID = MonitorID(conn.ID, job.Monitor, id)
		case target != nil:
			monitorID = target.ID
			if id = target.Attributes[models.AttributeID]; id == "" {
				id = target.ID
			}
		default:
			id = strconv.Itoa(i)
			monitorID = MonitorID(conn.ID, job.Monitor, id)
		}

		tm.UpdateMonitor(job.Monitor, monitorID, func(mon *models.Monitor) {
			mon.ConnectorID = conn.ID
			for name, value := range attributes {
				mon.Attributes[name] = value
			}
			mon.Attributes[models.AttributeID] = id
			if _, ok := mon.Attributes[models.AttributeParentID]; !ok {
				mon.Attributes[models.AttributeParentID] = tm.HostMonitorID()
			}
			for name, tmpl := range m.Metrics {
				value, ok := expand(tmpl, row)
				if !ok {
					continue
				}
				f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
				if err != nil {
					continue
				}
				mon.SetMetric(name, f, now)
			}
		})
		count++
	}
	return count
}

// MonitorID builds the id of a monitor discovered by a connector.
func MonitorID(connectorID, monitorType, id string) string {
	return fmt.Sprintf("%s_%s_%s", connectorID, monitorType, id)
}

// mappingTable resolves the mapping source: a ${source::...} reference or
// the name of a source of the job.
func mappingTable(ns *telemetry.Namespace, job *connector.Job, ref string) (*sourcetable.Table, bool) {
	if sourcetable.IsReference(ref) {
		return sourcetable.Lookup(ref, ns)
	}
	return ns.SourceTable(job.SourceKey(ref))
}

func expand(tmpl string, row []string) (string, bool) {
	value, ok := sourcetable.ReplaceColumnReferences(tmpl, row)
	if !ok {
		return "", false
	}
	return sourcetable.UnescapeDollars(value), true
}
