package ledger

// Stage is the lifecycle state of a batch thread.
type Stage string

const (
	StageCreated     Stage = "CREATED"
	StageHarvested   Stage = "HARVESTED"
	StageAggregated  Stage = "AGGREGATED"
	StageWarehoused  Stage = "WAREHOUSED"
	StageProcessed   Stage = "PROCESSED"
	StageRetailReady Stage = "RETAIL_READY"
	StageConsumed    Stage = "CONSUMED"
)

var actionStages = map[Action]Stage{
	ActionSeedCreated:     StageCreated,
	ActionHarvestSold:     StageHarvested,
	ActionAggregated:      StageAggregated,
	ActionShipmentCreated: StageWarehoused,
	ActionProcessed:       StageProcessed,
	ActionRetailReady:     StageRetailReady,
	ActionConsumed:        StageConsumed,
}

// Stage returns the batch state a block with action a moves its batch into.
func (a Action) Stage() (Stage, bool) {
	s, ok := actionStages[a]
	return s, ok
}

// Terminal reports whether no further stage may follow s.
func (s Stage) Terminal() bool { return s == StageConsumed }
