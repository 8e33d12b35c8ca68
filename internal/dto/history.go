package dto

// MountGridRequest mounts a history grid.
type MountGridRequest struct {
	Mode string `json:"mode" binding:"required,oneof=observation process"`
}

// SortRequest sorts a grid by a field; repeating the current field flips the direction.
type SortRequest struct {
	Field string `json:"field" binding:"required"`
}

// FilterRequest replaces the filter text. An empty text clears the filter.
type FilterRequest struct {
	Text string `json:"text"`
}

// PageRequest moves a grid to a zero-based page.
type PageRequest struct {
	Index *int `json:"index" binding:"required,min=0,max=1000000"`
}

// PageSizeRequest changes the page size.
type PageSizeRequest struct {
	Size int `json:"size" binding:"required"`
}

// DateRangeRequest applies an inclusive YYYY-MM-DD observation date range.
type DateRangeRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

// SelectionRequest selects rows of the current page.
type SelectionRequest struct {
	Indices []int `json:"indices" binding:"required"`
}

// OpenCommentsRequest opens the comment dialog on a process.
type OpenCommentsRequest struct {
	ProcessID int64 `json:"process_id" binding:"required,gt=0"`
}

// LinkResponse carries a link resolved for a grid row.
type LinkResponse struct {
	URL string `json:"url"`
}
