package service

import "github.com/jmerrifield20/agriledger/internal/ledger"

// openingActions may start a batch. HARVEST_SOLD covers produce sold by a
// farmer without a seed record.
var openingActions = []ledger.Action{ledger.ActionSeedCreated, ledger.ActionHarvestSold}

// nextAction maps each stage to the single action allowed after it.
// The terminal stage has no entry.
var nextAction = func() map[ledger.Stage]ledger.Action {
	m := make(map[ledger.Stage]ledger.Action, len(ledger.StageActions))
	for i := 0; i+1 < len(ledger.StageActions); i++ {
		stage, _ := ledger.StageActions[i].Stage()
		m[stage] = ledger.StageActions[i+1]
	}
	return m
}()

// legalActions returns the actions accepted for a batch in stage current.
// exists is false for a batch with no blocks.
func legalActions(current ledger.Stage, exists bool) []ledger.Action {
	if !exists {
		return openingActions
	}
	if next, ok := nextAction[current]; ok {
		return []ledger.Action{next}
	}
	return nil
}

func checkTransition(batchID string, current ledger.Stage, exists bool, action ledger.Action) error {
	legal := legalActions(current, exists)
	for _, a := range legal {
		if a == action {
			return nil
		}
	}
	return &OrderError{BatchID: batchID, Current: current, Action: action, Expected: legal}
}
