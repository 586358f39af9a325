package ledger

// Canonical serialization and hashing. Every hash site in the kernel
// (event payload_hash, audit chain hash, journal/economic-event hash,
// canonical ledger hash) goes through the helpers in this file, so two
// semantically equal values always hash identically regardless of how
// their Go struct fields happen to be ordered.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalize re-marshals v with sorted object keys and stable numeric
// formatting. encoding/json already sorts map[string]T keys on Marshal;
// canonicalize additionally round-trips through a generic structure so
// struct field order never leaks into the byte stream, only field names
// (via json tags) do.
func canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

// marshalCanonical writes generic (built from json.Decoder.UseNumber, so
// maps are map[string]interface{} and numbers are json.Number) with
// recursively sorted object keys.
func marshalCanonical(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(val)
	}
}

// decodeJSONInto unmarshals raw JSON bytes into v; a thin wrapper kept
// alongside the other serialization helpers so every decode site goes
// through one place.
func decodeJSONInto(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// CanonicalPayloadHash computes the hex-encoded SHA-256 digest of v's
// canonical serialization. Used for BusinessEvent.payload_hash,
// EconomicEvent hashing and any other content-hash of a structured value.
func CanonicalPayloadHash(v interface{}) (string, error) {
	b, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash computes hash(n) = H(payloadHash || prevHash), the link
// function shared by every hash-chained entity (events, audit records,
// journal entries). prevHash is "" for the first node in a chain.
func ChainHash(payloadHash, prevHash string) string {
	h := sha256.New()
	h.Write([]byte(payloadHash))
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalLineRepr is the canonical serialization of a single JournalLine
// used when computing the canonical ledger hash — deliberately a narrower
// projection than the full JournalLine struct so that fields with no
// bearing on ledger meaning (memo text, metadata) don't perturb the hash.
type CanonicalLineRepr struct {
	AccountID  string      `json:"account_id"`
	Side       LineSide    `json:"side"`
	MinorUnits int64       `json:"minor_units"`
	Currency   Currency    `json:"currency"`
	Dimensions []Dimension `json:"dimensions"`
	IsRounding bool        `json:"is_rounding"`
}

// CanonicalEntryRepr is the canonical, hash-stable projection of a
// JournalEntry plus its lines, used to build the canonical ledger hash.
type CanonicalEntryRepr struct {
	LedgerID      string              `json:"ledger_id"`
	Seq           uint64              `json:"seq"`
	EffectiveDate string              `json:"effective_date"`
	Lines         []CanonicalLineRepr `json:"lines"`
}
