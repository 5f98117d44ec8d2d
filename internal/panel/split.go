package panel

// Split partitions the panel by year: train holds every row before year, test holds
// exactly year. Rows after year land in neither. The input is left untouched.
func Split(p *Panel, year int) (train, test *Panel) {
	train = p.Filter(func(o Observation) bool { return o.Year < year })
	test = p.Filter(func(o Observation) bool { return o.Year == year })
	return train, test
}
