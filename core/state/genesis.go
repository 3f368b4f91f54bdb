package state

// GenesisApplied reports whether the genesis bootstrap has run.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVGet(genesisMarkerKey, nil)
}

// MarkGenesisApplied records that the genesis bootstrap ran.
func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut(genesisMarkerKey, true)
}
