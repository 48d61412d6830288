/*
Package errors provides semantic error types for the recallkit library.

The package defines the error kinds of the persistence core with specific
types that can be checked using the standard errors.Is() function or the
provided helper functions.

Common Errors:

	var (
	    ErrFieldType         = errors.New("field type mismatch")
	    ErrDefinition        = errors.New("invalid definition")
	    ErrDuplicateIdentity = errors.New("duplicate identity")
	    ErrAmbiguousIdentity = errors.New("ambiguous identity")
	    ErrMapping           = errors.New("storage mapping conflict")
	    ErrUnsupportedJoin   = errors.New("unsupported join")
	    ErrNoPath            = errors.New("no association path")
	)

Usage:

	// Check error type
	if err := rec.Set("Size", "big"); err != nil {
	    if errors.IsFieldType(err) {
	        // Handle the bad assignment
	    }
	    return err
	}

	// Create typed errors
	err := errors.NewDefinitionError("Zoo", "Name", "field already defined")
	err := errors.NewMappingError("Zoo", "no storage found")

Schema-mutating calls take a conflict mode (error, warn, repair, ignore)
dispatched through ConflictHandler. Under the warn mode, conflicts are
collected as StorageWarnings and surfaced as a batch rather than raised
one at a time.

The error types implement the error interface and support wrapping,
making them compatible with Go's standard error handling patterns.
*/
package errors
