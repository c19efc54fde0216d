// Package storage provides the exclusive read/modify/write port used for every
// piece of persisted state: the shared OAuth credential record, the
// idempotency table and the bootstrap state.
//
// A Store holds exactly one document. Update serializes callers across
// goroutines and processes, hands the current bytes to a Mutator and persists
// whatever the Mutator returns:
//
//	err := store.Update(ctx, func(current []byte) ([]byte, error) {
//	    var doc tokenDocument
//	    _ = json.Unmarshal(current, &doc)
//	    doc.Touched++
//	    return json.Marshal(doc)
//	})
//
// Two backends are available. FileStore keeps the document on a local or
// shared volume and uses an advisory file lock. ValkeyStore keeps it in
// Valkey and uses a SET NX lock with an owner token, which lets several
// replicas share state without a common filesystem.
package storage
