package ledger

// Payload schema validators: small, hand-written structural checks
// registered per (event_type, schema_version), used by EventStore.Ingest
// to reject malformed payloads before they ever reach policy selection.
// Grounded on the teacher's implicit struct-typed events
// (TransactionCreatedEvent, AccountCreatedEvent in engine.go); here the
// payload is untyped JSON (any upstream module may supply new event
// types without a kernel redeploy), so validation is an explicit
// function per type instead of the compiler doing it via Go structs.

import "fmt"

// RequireFields returns a SchemaValidator that rejects a payload missing
// any of the named top-level fields.
func RequireFields(fields ...string) SchemaValidator {
	return func(payload []byte) error {
		var decoded map[string]interface{}
		if err := decodeJSONInto(payload, &decoded); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}
		for _, f := range fields {
			if _, ok := decoded[f]; !ok {
				return fmt.Errorf("missing required field %q", f)
			}
		}
		return nil
	}
}
