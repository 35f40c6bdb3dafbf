package aggregates

// Contract names an aggregate and the tables it owns. Writes to those tables
// happen only inside the aggregate's own transaction; callers never pass one in.
type Contract struct {
	Name   string
	Tables []string
	Notes  string
}

// Owns reports whether table is written by this aggregate.
func (c Contract) Owns(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}

type Aggregate interface {
	Contract() Contract
}
