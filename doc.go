// Package sqlbridge converts between loosely typed Go parameters and typed
// SQL driver values.
//
// Bound parameters are classified into a closed Value model, :named
// placeholders are rewritten into the positional markers of the target
// dialect ($1, @P1 or ?), and driver result sets are turned back into rows of
// Values with inferred column types. SQL is never parsed.
//
//	st, err := sqlbridge.New(sqlbridge.Postgres).
//		Write("SELECT * FROM users WHERE id = :id").
//		Bind("id", 42).
//		Build()
package sqlbridge
