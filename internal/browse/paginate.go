package browse

// Pagination is the window of one page over a filtered list.
type Pagination struct {
	Page       int
	TotalPages int
	Start      int
	End        int
}

// Paginate clamps page to [1, totalPages] and returns the slice bounds.
// totalPages is at least 1 so an empty list still has a first page.
func Paginate(total, page, size int) Pagination {
	if size <= 0 {
		size = 10
	}
	totalPages := max(1, (total+size-1)/size)
	page = min(max(page, 1), totalPages)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	return Pagination{Page: page, TotalPages: totalPages, Start: start, End: end}
}
