package types

// Result carries a per-item outcome in bulk lookups. A bulk read over ids
// never fails as a whole: each id resolves to a value, a not-found marker or
// a forbidden marker.
type Result[T any] struct {
	Data    T
	Message string
	Status  int
}

const (
	// StatusOK marks a successfully resolved item.
	StatusOK = 200
	// StatusNotFound marks an item that does not exist at the stage.
	StatusNotFound = 404
	// StatusForbidden marks an item the caller may not read.
	StatusForbidden = 403
)

// OK wraps a resolved value.
func OK[T any](data T) Result[T] {
	return Result[T]{Data: data, Status: StatusOK}
}

// NotFound marks an absent item.
func NotFound[T any](message string) Result[T] {
	return Result[T]{Message: message, Status: StatusNotFound}
}

// Forbidden marks an item the caller has no access to.
func Forbidden[T any](message string) Result[T] {
	return Result[T]{Message: message, Status: StatusForbidden}
}

// Pagination is a from/size window. A nil Size means "everything from From".
type Pagination struct {
	From int64
	Size *int64
}

// NewPagination builds a window with a fixed size.
func NewPagination(from, size int64) Pagination {
	return Pagination{From: from, Size: &size}
}

// IsBounded reports whether the window has an upper bound.
func (p Pagination) IsBounded() bool {
	return p.Size != nil
}

// Paginated is a result window plus the total number of matches.
type Paginated[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
	Size  int64 `json:"size"`
	From  int64 `json:"from"`
}

// NewPaginated builds a window result. Size is derived from the data when the
// request was unbounded.
func NewPaginated[T any](data []T, total int64, pagination Pagination) Paginated[T] {
	size := int64(len(data))
	if pagination.IsBounded() {
		size = *pagination.Size
	}
	return Paginated[T]{Data: data, Total: total, Size: size, From: pagination.From}
}

// Empty returns a zero-element window.
func Empty[T any]() Paginated[T] {
	return Paginated[T]{Data: []T{}}
}
