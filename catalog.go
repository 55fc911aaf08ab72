package signflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// CatalogSource provides the versioned set of signable webpages for an
// entity. The catalog is read-only reference data; this service never
// writes it.
type CatalogSource interface {
	Webpages(ctx context.Context, entity string) ([]WebpageTask, error)
}

// HTTPCatalog fetches <BaseURL><entity>.json, the layout the catalog site
// publishes: {"webpages": [...]}.
type HTTPCatalog struct {
	BaseURL string
	Client  *http.Client
}

func (c *HTTPCatalog) Webpages(ctx context.Context, entity string) ([]WebpageTask, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	// Cache-busting query param; catalog edits should be visible on the
	// next job, not whenever an intermediary expires.
	url := fmt.Sprintf("%s%s.json?t=%d", c.BaseURL, entity, time.Now().UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog for %q: %w", entity, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog for %q: unexpected status %s", entity, resp.Status)
	}

	var doc struct {
		Webpages []WebpageTask `json:"webpages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog for %q: %w", entity, err)
	}
	return doc.Webpages, nil
}

// MySQLCatalog reads the same catalog out of a webpages table, for
// deployments that version the reference data in a database instead of a
// static site. Actions and fields are stored as JSON columns.
type MySQLCatalog struct {
	DB     *sql.DB
	DbName string
}

func (c *MySQLCatalog) Webpages(ctx context.Context, entity string) ([]WebpageTask, error) {
	query := `
			SELECT
			  title,
			  url,
			  auto,
			  actions,
			  fields,
			  submit
			FROM ` + c.DbName + `.webpages
			WHERE entity = ?
			ORDER BY position
`
	rows, err := c.DB.QueryContext(ctx, query, entity)
	if err != nil {
		return nil, fmt.Errorf("query catalog for %q: %w", entity, err)
	}
	defer rows.Close()

	var tasks []WebpageTask
	for rows.Next() {
		var (
			t           WebpageTask
			auto        sql.NullString
			actionsJSON []byte
			fieldsJSON  []byte
		)
		if err := rows.Scan(&t.Title, &t.URL, &auto, &actionsJSON, &fieldsJSON, &t.Submit); err != nil {
			return nil, err
		}
		if auto.Valid {
			t.Auto = auto.String
		}
		if len(actionsJSON) > 0 {
			if err := json.Unmarshal(actionsJSON, &t.Actions); err != nil {
				return nil, fmt.Errorf("catalog entry %q: invalid actions: %w", t.Title, err)
			}
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &t.Fields); err != nil {
				return nil, fmt.Errorf("catalog entry %q: invalid fields: %w", t.Title, err)
			}
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}
