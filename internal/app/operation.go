package app

// CrawlOperation tracks a CLI operation that may mutate the database.
// Operations are created in memory with ID=0. Only DB-mutating commands
// persist them (giving them an auto-increment ID from the database).
type CrawlOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

// NewCrawlOperation creates a new in-memory crawl operation.
func NewCrawlOperation(operation, parameters string) *CrawlOperation {
	return &CrawlOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *CrawlOperation) Persisted() bool {
	return op.ID != 0
}
