package hub

// CheckConsistency reports whether both indices agree with the primary map.
func (r *Registry) CheckConsistency() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	check := func(idx map[string]idSet, key func(*Connection) string) bool {
		indexed := 0
		for k, set := range idx {
			for id := range set {
				conn, ok := r.connections[id]
				if !ok || key(conn) != k {
					return false
				}
				indexed++
			}
		}
		return indexed == len(r.connections)
	}

	return check(r.byUser, (*Connection).UserID) &&
		check(r.byTenant, (*Connection).TenantID)
}
