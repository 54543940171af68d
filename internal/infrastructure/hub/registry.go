package hub

import (
	"sync"

	"go-realtime-events/internal/infrastructure/logger"
)

type idSet map[string]struct{}

// Registry indexes the Connections open on this process by id, user and tenant.
// The primary map and both indices change together under one lock, so readers
// never observe a connection in one structure but not the others.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	byUser      map[string]idSet
	byTenant    map[string]idSet

	logger logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		byUser:      make(map[string]idSet),
		byTenant:    make(map[string]idSet),
		logger:      log.WithField("component", "registry"),
	}
}

// Add registers conn. Several connections per user are allowed; an existing entry
// with the same id is replaced.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	if old, ok := r.connections[conn.ID()]; ok {
		r.unindex(old)
	}
	r.connections[conn.ID()] = conn
	index(r.byUser, conn.UserID(), conn.ID())
	index(r.byTenant, conn.TenantID(), conn.ID())
	total := len(r.connections)
	r.mu.Unlock()

	r.logger.Debugf("connection %s registered (user %s, tenant %s, total %d)",
		conn.ID(), conn.UserID(), conn.TenantID(), total)
}

// Remove drops the connection with the given id. Unknown ids are ignored; the
// return value reports whether anything was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	conn, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
		r.unindex(conn)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debugf("connection %s unregistered", id)
	}
	return ok
}

func (r *Registry) unindex(conn *Connection) {
	unindex(r.byUser, conn.UserID(), conn.ID())
	unindex(r.byTenant, conn.TenantID(), conn.ID())
}

func index(m map[string]idSet, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func unindex(m map[string]idSet, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// ByUser returns a snapshot of the user's connections.
func (r *Registry) ByUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byUser[userID])
}

// ByTenant returns a snapshot of the tenant's connections.
func (r *Registry) ByTenant(tenantID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byTenant[tenantID])
}

// ByIDs returns the subset of ids that are registered here.
func (r *Registry) ByIDs(ids []string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(idSet, len(ids))
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if conn, ok := r.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) collect(ids idSet) []*Connection {
	conns := make([]*Connection, 0, len(ids))
	for id := range ids {
		conns = append(conns, r.connections[id])
	}
	return conns
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes and unregisters every connection. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.connections = make(map[string]*Connection)
	r.byUser = make(map[string]idSet)
	r.byTenant = make(map[string]idSet)
	r.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			r.logger.Errorf("failed to close connection %s: %v", conn.ID(), err)
		}
	}
	r.logger.Infof("closed %d connections", len(conns))
}
