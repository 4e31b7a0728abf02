package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// ExportCSV renders change records as CSV, newest first, matching the order
// returned by Service.Export.
func ExportCSV(rows []ChangeRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"changed_at", "action", "role_id", "role_name", "permission_codename", "actor_id", "actor_email"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range rows {
		record := []string{
			rec.ChangedAt.UTC().Format(time.RFC3339),
			string(rec.Action),
			strconv.FormatInt(rec.RoleID, 10),
			rec.RoleName,
			rec.PermissionCodename,
			strconv.FormatInt(rec.ActorID, 10),
			rec.ActorEmail,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
