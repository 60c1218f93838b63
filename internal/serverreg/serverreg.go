// Package serverreg is the minimal Server resource registry komodo-core
// needs to drive the status poller and stack action executor: just
// enough of the Server resource (address, passkey, disabled flag) to
// build a Periphery connection per server (spec.md §4.3). The full
// Server kind (tags, base permission, create/update hooks through
// internal/resource.Engine) is a follow-on; this registry is the narrow
// slice the entrypoint wires today.
package serverreg

import "github.com/komodo-run/komodo/internal/store"

// Record is one Server's connection details.
type Record struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"` // base URL, e.g. https://host:8120
	Passkey     string `json:"passkey"`
	InsecureTLS bool   `json:"insecure_tls"`
	Disabled    bool   `json:"disabled"`
}

func (r Record) RowID() string   { return r.ID }
func (r Record) RowName() string { return r.Name }
func (r Record) RowTags() string { return "" }

// Registry is a name-indexed Server collection.
type Registry struct {
	docs *store.SQLiteDocs[Record]
}

func New(db *store.DB) (*Registry, error) {
	docs, err := store.NewSQLiteDocs[Record](db, "servers")
	if err != nil {
		return nil, err
	}
	return &Registry{docs: docs}, nil
}

func (r *Registry) Get(id string) (Record, bool) { return r.docs.Get(id) }
func (r *Registry) List() ([]Record, error)      { return r.docs.List() }

func (r *Registry) Upsert(rec Record) error {
	if _, ok := r.docs.Get(rec.ID); ok {
		return r.docs.Replace(rec, rec)
	}
	return r.docs.Insert(rec, rec)
}

func (r *Registry) Delete(id string) error { return r.docs.Delete(id) }
