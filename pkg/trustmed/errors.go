package trustmed

import "errors"

// Error taxonomy shared by the index builder and the retriever. Concrete
// failures wrap one of these, so callers match with errors.Is.
var (
	// ErrIngestion marks malformed or inconsistent input at build time.
	// The build aborts without replacing existing artifacts.
	ErrIngestion = errors.New("ingestion error")

	// ErrLoad marks missing, corrupt or mutually inconsistent artifacts.
	// A retriever must not serve queries after this.
	ErrLoad = errors.New("load error")

	// ErrQuery marks a failure local to a single query.
	ErrQuery = errors.New("query error")

	// ErrInvalidK is returned (together with ErrQuery) when k < 1.
	ErrInvalidK = errors.New("k must be at least 1")
)
