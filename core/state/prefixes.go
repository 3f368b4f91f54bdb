package state

var (
	balancePrefix = []byte("balance/")
	pausePrefix   = []byte("pause/")

	receivableSettingsKey  = []byte("receivables/settings")
	receivableCountersKey  = []byte("receivables/counters")
	receivableRecordPrefix = []byte("receivables/record/")
	receivableOwnerPrefix  = []byte("receivables/owner/")

	vaultStateKey       = []byte("vault/state")
	vaultPositionPrefix = []byte("vault/position/")

	lendingSettingsKey    = []byte("lending/settings")
	lendingCountersKey    = []byte("lending/counters")
	lendingLoanPrefix     = []byte("lending/loan/")
	lendingBorrowerPrefix = []byte("lending/borrower/")

	genesisMarkerKey = []byte("genesis/applied")
)
