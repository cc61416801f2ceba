package addrindex

// defaultCompactionThreshold bounds how many balance-change entries an
// address's ledger may hold before compaction considers collapsing the
// oldest of them (§4.4 "Compaction").
const defaultCompactionThreshold = 1000

// compactAddress collapses every balance change older than the most recent
// compactionThreshold entries into one synthetic height-0 change, once the
// address has more than compactionThreshold entries and its second-oldest
// entry is older than consensusTip-compactionTriggerDistance. Irreversible,
// so compactionTriggerDistance must exceed maximum reorg depth (§4.4) — the
// caller is responsible for that invariant, not this function.
//
// Runs synchronously inside the caller's block-processing transaction, per
// Open Question (2): fire-and-forget compaction with no completion/error
// signal is a defect, not a feature, so this is called directly rather than
// spawned as a goroutine.
func compactAddress(repo Repository, address string, consensusTip uint32, compactionThreshold int, compactionTriggerDistance uint32) error {
	if compactionThreshold <= 0 {
		compactionThreshold = defaultCompactionThreshold
	}

	changes, err := repo.BalanceChanges(address)
	if err != nil {
		return err
	}
	if len(changes) <= compactionThreshold || len(changes) < 2 {
		return nil
	}
	if consensusTip < compactionTriggerDistance {
		return nil
	}

	cutoffHeight := consensusTip - compactionTriggerDistance
	secondOldest := changes[1]
	if secondOldest.Height >= cutoffHeight {
		return nil
	}

	collapseCount := len(changes) - compactionThreshold
	var sum int64
	for _, c := range changes[:collapseCount] {
		sum += c.signedAmount()
	}

	synthetic := BalanceChange{Height: 0}
	if sum < 0 {
		synthetic.Direction = Withdrawal
		synthetic.Amount = uint64(-sum)
	} else {
		synthetic.Direction = Deposit
		synthetic.Amount = uint64(sum)
	}

	collapsed := make([]BalanceChange, 0, len(changes)-collapseCount+1)
	collapsed = append(collapsed, synthetic)
	collapsed = append(collapsed, changes[collapseCount:]...)

	return repo.SetBalanceChanges(address, collapsed)
}
