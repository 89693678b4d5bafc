package ledger

// SeedBalance is a test helper that overwrites a user's wallet balance when
// using the in-memory store. It bumps the version like any other write, so
// scopes that read the wallet earlier fail their compare-and-set. It reports
// false if the store is not in-memory or the user has no wallet.
func SeedBalance(s Store, userID string, balance int64) bool {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return false
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	w, ok := mem.walletForUser(userID)
	if !ok {
		return false
	}
	w.Balance = balance
	w.Version++
	mem.wallets[w.ID] = w
	return true
}

// TotalBalance sums every wallet balance held by an in-memory store.
func TotalBalance(s Store) int64 {
	mem, ok := s.(*inMemoryStore)
	if !ok {
		return 0
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	var total int64
	for _, w := range mem.wallets {
		total += w.Balance
	}
	return total
}
