package export

// Dataset defines tabular export content. Rows are ordered and must
// align with Headers.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}
