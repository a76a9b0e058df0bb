package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/comunidadegraca/atendebot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanMenuNode scans a MenuNode from sql.Rows.
func scanMenuNode(rows *sql.Rows) (models.MenuNode, error) {
	var n models.MenuNode
	var parentID, description, content, url, actionPayload sql.NullString
	err := rows.Scan(
		&n.ID, &parentID, &n.Order, &n.Title, &description, &content, &url,
		&n.Kind, &actionPayload, &n.IsActive, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return n, fmt.Errorf("scan menu node failed: %w", err)
	}
	n.ParentID = parentID.String
	n.Description = description.String
	n.Content = content.String
	n.URL = url.String
	n.ActionPayload = models.ActionPayload(actionPayload.String)
	return n, nil
}

// scanMenuNodeRow scans a MenuNode from a single sql.Row.
func scanMenuNodeRow(row *sql.Row) (models.MenuNode, error) {
	var n models.MenuNode
	var parentID, description, content, url, actionPayload sql.NullString
	err := row.Scan(
		&n.ID, &parentID, &n.Order, &n.Title, &description, &content, &url,
		&n.Kind, &actionPayload, &n.IsActive, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return n, err
	}
	n.ParentID = parentID.String
	n.Description = description.String
	n.Content = content.String
	n.URL = url.String
	n.ActionPayload = models.ActionPayload(actionPayload.String)
	return n, nil
}

// scanSession scans a Session from sql.Rows, decoding the interactions JSON column.
func scanSession(rows *sql.Rows) (models.Session, error) {
	var s models.Session
	var interactionsJSON sql.NullString
	err := rows.Scan(&s.ID, &s.Phone, &s.StartedAt, &s.LastActiveAt, &interactionsJSON)
	if err != nil {
		return s, fmt.Errorf("scan session failed: %w", err)
	}
	if interactionsJSON.Valid && interactionsJSON.String != "" {
		if err := json.Unmarshal([]byte(interactionsJSON.String), &s.Interactions); err != nil {
			return s, fmt.Errorf("decode session interactions failed: %w", err)
		}
	}
	return s, nil
}

// marshalInteractions encodes the bounded interaction history for storage.
// Returns nil for an empty history so the column stays NULL.
func marshalInteractions(interactions []models.Interaction) (interface{}, error) {
	if len(interactions) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(interactions)
	if err != nil {
		return nil, fmt.Errorf("encode session interactions failed: %w", err)
	}
	return string(b), nil
}

// dailyStatsColumns encodes the JSON-backed columns of a DailyStats row.
func dailyStatsColumns(st models.DailyStats) (nodeAccess, hourly, phones string, err error) {
	na, err := json.Marshal(st.NodeAccess)
	if err != nil {
		return "", "", "", fmt.Errorf("encode node access failed: %w", err)
	}
	hc, err := json.Marshal(st.HourlyCounts)
	if err != nil {
		return "", "", "", fmt.Errorf("encode hourly counts failed: %w", err)
	}
	up, err := json.Marshal(st.UniquePhones)
	if err != nil {
		return "", "", "", fmt.Errorf("encode unique phones failed: %w", err)
	}
	return string(na), string(hc), string(up), nil
}

// decodeDailyStats decodes the JSON-backed columns into a DailyStats value.
func decodeDailyStats(st *models.DailyStats, nodeAccess, hourly, phones sql.NullString) error {
	if nodeAccess.Valid && nodeAccess.String != "" {
		if err := json.Unmarshal([]byte(nodeAccess.String), &st.NodeAccess); err != nil {
			return fmt.Errorf("decode node access failed: %w", err)
		}
	}
	if hourly.Valid && hourly.String != "" {
		if err := json.Unmarshal([]byte(hourly.String), &st.HourlyCounts); err != nil {
			return fmt.Errorf("decode hourly counts failed: %w", err)
		}
	}
	if phones.Valid && phones.String != "" {
		if err := json.Unmarshal([]byte(phones.String), &st.UniquePhones); err != nil {
			return fmt.Errorf("decode unique phones failed: %w", err)
		}
	}
	return nil
}
