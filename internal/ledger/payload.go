package ledger

// Action is the stakeholder transaction type recorded by a block.
type Action string

const (
	ActionGenesis         Action = "GENESIS"
	ActionSeedCreated     Action = "SEED_CREATED"
	ActionHarvestSold     Action = "HARVEST_SOLD"
	ActionAggregated      Action = "AGGREGATED"
	ActionShipmentCreated Action = "SHIPMENT_CREATED"
	ActionProcessed       Action = "PROCESSED"
	ActionRetailReady     Action = "RETAIL_READY"
	ActionConsumed        Action = "CONSUMED"
)

// StageActions lists every action a stage block may carry, in journey order.
var StageActions = []Action{
	ActionSeedCreated,
	ActionHarvestSold,
	ActionAggregated,
	ActionShipmentCreated,
	ActionProcessed,
	ActionRetailReady,
	ActionConsumed,
}

// Valid reports whether a is a known stage action. GENESIS is not a stage action.
func (a Action) Valid() bool {
	_, ok := actionStages[a]
	return ok
}

// Payload is the tagged data carried by a block. Action selects which of the
// optional fields are meaningful; unused fields stay at their zero value and
// are omitted from both the JSON and the canonical encoding.
type Payload struct {
	Action  Action `json:"action"`
	BatchID string `json:"batchId,omitempty"`

	// SEED_CREATED
	Variety  string `json:"variety,omitempty"`
	Genetics string `json:"genetics,omitempty"`

	// HARVEST_SOLD
	FarmerID    string  `json:"farmerId,omitempty"`
	Crop        string  `json:"crop,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	HarvestDate string  `json:"harvestDate,omitempty"`
	OilContent  float64 `json:"oilContent,omitempty"`

	// AGGREGATED
	LotID          string   `json:"lotId,omitempty"`
	Grade          string   `json:"grade,omitempty"`
	MemberBatchIDs []string `json:"memberBatchIds,omitempty"`

	// SHIPMENT_CREATED
	TrackingID  string `json:"trackingId,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`

	// PROCESSED
	ProcessorID    string `json:"processorId,omitempty"`
	ProcessingDate string `json:"processingDate,omitempty"`
	Details        string `json:"details,omitempty"`

	// RETAIL_READY
	RetailerID string  `json:"retailerId,omitempty"`
	Price      float64 `json:"price,omitempty"`

	// CONSUMED
	ConsumerID   string `json:"consumerId,omitempty"`
	PurchaseDate string `json:"purchaseDate,omitempty"`

	// DigitalPassport is set on the block that opens a batch.
	DigitalPassport string `json:"digitalPassport,omitempty"`
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	if p.MemberBatchIDs != nil {
		p.MemberBatchIDs = append([]string(nil), p.MemberBatchIDs...)
	}
	return p
}
