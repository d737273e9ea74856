package ledger

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strconv"
)

// Value kinds in the canonical encoding.
const (
	kindString  byte = 's'
	kindNumber  byte = 'n'
	kindStrings byte = 'l'
)

type canonicalField struct {
	key  string
	kind byte
	str  string
	list []string
}

// Canonicalize encodes p into a byte sequence that depends only on its field
// values. Non-empty fields are written in ascending key order as
//
//	len(key) key kind len(value) value
//
// with 32-bit big-endian lengths. Numbers use the shortest decimal form that
// round-trips; string lists are a count followed by length-prefixed elements.
func Canonicalize(p Payload) []byte {
	fields := p.canonicalFields()
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	var buf bytes.Buffer
	for _, f := range fields {
		writeLenPrefixed(&buf, []byte(f.key))
		buf.WriteByte(f.kind)
		if f.kind == kindStrings {
			writeUint32(&buf, uint32(len(f.list)))
			for _, s := range f.list {
				writeLenPrefixed(&buf, []byte(s))
			}
			continue
		}
		writeLenPrefixed(&buf, []byte(f.str))
	}
	return buf.Bytes()
}

func (p Payload) canonicalFields() []canonicalField {
	var fields []canonicalField
	str := func(key, v string) {
		if v != "" {
			fields = append(fields, canonicalField{key: key, kind: kindString, str: v})
		}
	}
	num := func(key string, v float64) {
		if v != 0 {
			fields = append(fields, canonicalField{key: key, kind: kindNumber, str: formatNumber(v)})
		}
	}

	str("action", string(p.Action))
	str("batchId", p.BatchID)
	str("variety", p.Variety)
	str("genetics", p.Genetics)
	str("farmerId", p.FarmerID)
	str("crop", p.Crop)
	num("quantity", p.Quantity)
	str("harvestDate", p.HarvestDate)
	num("oilContent", p.OilContent)
	str("lotId", p.LotID)
	str("grade", p.Grade)
	if len(p.MemberBatchIDs) > 0 {
		fields = append(fields, canonicalField{key: "memberBatchIds", kind: kindStrings, list: p.MemberBatchIDs})
	}
	str("trackingId", p.TrackingID)
	str("origin", p.Origin)
	str("destination", p.Destination)
	str("processorId", p.ProcessorID)
	str("processingDate", p.ProcessingDate)
	str("details", p.Details)
	str("retailerId", p.RetailerID)
	num("price", p.Price)
	str("consumerId", p.ConsumerID)
	str("purchaseDate", p.PurchaseDate)
	str("digitalPassport", p.DigitalPassport)
	return fields
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}
