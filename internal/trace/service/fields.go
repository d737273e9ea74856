package service

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jmerrifield20/agriledger/internal/ledger"
)

const (
	maxTextLen   = 256
	maxListItems = 1024
	dateLayout   = "2006-01-02"

	// fieldBatchID may appear in the fields of a creation request to choose
	// the batch ID instead of having one generated.
	fieldBatchID = "batchId"
)

type kind int

const (
	kindText kind = iota
	kindDate
	kindNumber
	kindList
)

// rule describes one accepted field of an action's schema.
type rule struct {
	name     string
	kind     kind
	required bool
	// min is the lower bound for numbers; strict excludes it.
	min    float64
	strict bool

	setText func(*ledger.Payload, string)
	setNum  func(*ledger.Payload, float64)
	setList func(*ledger.Payload, []string)
}

func text(name string, required bool, set func(*ledger.Payload, string)) rule {
	return rule{name: name, kind: kindText, required: required, setText: set}
}

func date(name string, set func(*ledger.Payload, string)) rule {
	return rule{name: name, kind: kindDate, setText: set}
}

func positive(name string, required bool, set func(*ledger.Payload, float64)) rule {
	return rule{name: name, kind: kindNumber, required: required, strict: true, setNum: set}
}

func nonNegative(name string, set func(*ledger.Payload, float64)) rule {
	return rule{name: name, kind: kindNumber, setNum: set}
}

func list(name string, set func(*ledger.Payload, []string)) rule {
	return rule{name: name, kind: kindList, setList: set}
}

var schemas = map[ledger.Action][]rule{
	ledger.ActionSeedCreated: {
		text("variety", true, func(p *ledger.Payload, v string) { p.Variety = v }),
		text("genetics", false, func(p *ledger.Payload, v string) { p.Genetics = v }),
	},
	ledger.ActionHarvestSold: {
		text("farmerId", true, func(p *ledger.Payload, v string) { p.FarmerID = v }),
		positive("quantity", true, func(p *ledger.Payload, v float64) { p.Quantity = v }),
		text("crop", false, func(p *ledger.Payload, v string) { p.Crop = v }),
		date("harvestDate", func(p *ledger.Payload, v string) { p.HarvestDate = v }),
		nonNegative("oilContent", func(p *ledger.Payload, v float64) { p.OilContent = v }),
	},
	ledger.ActionAggregated: {
		text("lotId", true, func(p *ledger.Payload, v string) { p.LotID = v }),
		text("grade", false, func(p *ledger.Payload, v string) { p.Grade = v }),
		list("memberBatchIds", func(p *ledger.Payload, v []string) { p.MemberBatchIDs = v }),
	},
	ledger.ActionShipmentCreated: {
		text("trackingId", true, func(p *ledger.Payload, v string) { p.TrackingID = v }),
		text("destination", true, func(p *ledger.Payload, v string) { p.Destination = v }),
		text("origin", false, func(p *ledger.Payload, v string) { p.Origin = v }),
	},
	ledger.ActionProcessed: {
		text("processorId", true, func(p *ledger.Payload, v string) { p.ProcessorID = v }),
		date("processingDate", func(p *ledger.Payload, v string) { p.ProcessingDate = v }),
		text("details", false, func(p *ledger.Payload, v string) { p.Details = v }),
	},
	ledger.ActionRetailReady: {
		text("retailerId", true, func(p *ledger.Payload, v string) { p.RetailerID = v }),
		positive("price", true, func(p *ledger.Payload, v float64) { p.Price = v }),
	},
	ledger.ActionConsumed: {
		text("consumerId", false, func(p *ledger.Payload, v string) { p.ConsumerID = v }),
		date("purchaseDate", func(p *ledger.Payload, v string) { p.PurchaseDate = v }),
	},
}

// buildPayload checks fields against the schema of action and returns the
// payload for batchID. A batchId entry in fields must match batchID.
func buildPayload(batchID string, action ledger.Action, fields map[string]any) (ledger.Payload, error) {
	schema, ok := schemas[action]
	if !ok {
		return ledger.Payload{}, invalid("action", "unknown action "+string(action))
	}

	known := make(map[string]bool, len(schema)+1)
	known[fieldBatchID] = true
	for _, r := range schema {
		known[r.name] = true
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			return ledger.Payload{}, invalid(k, "unknown field for "+string(action))
		}
	}
	if v, ok := fields[fieldBatchID]; ok {
		if s, _ := v.(string); s != batchID {
			return ledger.Payload{}, invalid(fieldBatchID, "does not match the batch being updated")
		}
	}

	p := ledger.Payload{Action: action, BatchID: batchID}
	for _, r := range schema {
		v, present := fields[r.name]
		if present && v == nil {
			present = false
		}
		if !present {
			if r.required {
				return ledger.Payload{}, invalid(r.name, "required")
			}
			continue
		}
		if err := r.apply(&p, v); err != nil {
			return ledger.Payload{}, err
		}
	}
	return p, nil
}

func (r rule) apply(p *ledger.Payload, v any) error {
	switch r.kind {
	case kindText, kindDate:
		s, err := textValue(r.name, v)
		if err != nil {
			return err
		}
		if s == "" {
			if r.required {
				return invalid(r.name, "required")
			}
			return nil
		}
		if r.kind == kindDate {
			if _, err := time.Parse(dateLayout, s); err != nil {
				return invalid(r.name, "must be a date in YYYY-MM-DD form")
			}
		}
		r.setText(p, s)
	case kindNumber:
		n, err := numberValue(r.name, v)
		if err != nil {
			return err
		}
		if n < r.min || (r.strict && n == r.min) {
			if r.strict {
				return invalid(r.name, "must be greater than zero")
			}
			return invalid(r.name, "must not be negative")
		}
		r.setNum(p, n)
	case kindList:
		items, err := listValue(r.name, v)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			r.setList(p, items)
		}
	}
	return nil
}

func textValue(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "must be a string")
	}
	if err := ledger.CheckText(s); err != nil {
		return "", invalid(field, err.Error())
	}
	s = strings.TrimSpace(s)
	if len(s) > maxTextLen {
		return "", invalid(field, "too long")
	}
	return s, nil
}

func numberValue(field string, v any) (float64, error) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, invalid(field, "must be a number")
		}
		n = f
	default:
		return 0, invalid(field, "must be a number")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, invalid(field, "must be a finite number")
	}
	return n, nil
}

func listValue(field string, v any) ([]string, error) {
	var raw []any
	switch x := v.(type) {
	case []string:
		raw = make([]any, len(x))
		for i, s := range x {
			raw[i] = s
		}
	case []any:
		raw = x
	default:
		return nil, invalid(field, "must be a list of strings")
	}
	if len(raw) > maxListItems {
		return nil, invalid(field, "too many items")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, err := textValue(field, item)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return nil, invalid(field, "items must not be empty")
		}
		out = append(out, s)
	}
	return out, nil
}

func validBatchID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return invalid(fieldBatchID, "required")
	case id != strings.TrimSpace(id):
		return invalid(fieldBatchID, "must not have surrounding whitespace")
	case len(id) > maxTextLen:
		return invalid(fieldBatchID, "too long")
	case ledger.CheckText(id) != nil:
		return invalid(fieldBatchID, ledger.CheckText(id).Error())
	case strings.ContainsAny(id, "/?#"):
		return invalid(fieldBatchID, "must not contain '/', '?' or '#'")
	}
	return nil
}
