package storage

// StorageListRequest streams rows to ApplyFunc. When ExhaustiveRun is false
// only the first page is visited.
type StorageListRequest[E any] struct {
	ExhaustiveRun bool
	ApplyFunc     func(E)
	PageSize      int
}
