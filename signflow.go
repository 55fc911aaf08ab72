// Package signflow automates filling and submitting a user's selection of
// external web forms, streaming live progress to any number of observers.
package signflow

import (
	"database/sql"
	"net/http"
)

// Service bundles the registry, signer and HTTP surface for one deployment.
type Service struct {
	cfg      *Config
	registry *Registry
	signer   *Signer
	server   *Server

	db *sql.DB // set when the MySQL catalog source is in use
}

// New assembles a service from cfg. The catalog source is picked by
// configuration: a MySQL DSN switches from the HTTP catalog to the
// database-backed one.
func New(cfg *Config) (*Service, error) {
	// Provide default log functions if the user didn't set them
	if cfg.InfoLog == nil {
		cfg.InfoLog = defaultInfoLog
	}
	if cfg.ErrorLog == nil {
		cfg.ErrorLog = defaultErrorLog
	}

	svc := &Service{cfg: cfg}

	var catalog CatalogSource
	if cfg.CatalogDSN != "" {
		db, err := sql.Open("mysql", cfg.CatalogDSN)
		if err != nil {
			return nil, err
		}
		svc.db = db
		catalog = &MySQLCatalog{DB: db, DbName: cfg.CatalogDB}
	} else {
		catalog = &HTTPCatalog{BaseURL: cfg.DataURL}
	}

	browser := &ChromeBrowser{ExecPath: cfg.BrowserPath, Headless: cfg.Headless}

	svc.registry = NewRegistry(cfg)
	svc.signer = NewSigner(cfg, catalog, browser)
	svc.server = NewServer(cfg, svc.registry, svc.signer)
	return svc, nil
}

// Handler returns the service's HTTP handler for mounting into a server.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Registry exposes the job registry, mainly for tests and introspection.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Close releases resources held by the service. In-flight jobs are not
// interrupted; they run to their terminal state.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
