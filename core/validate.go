package core

// ValidateRange checks the arguments of a position or revision range query.
func ValidateRange(from int64, to Bound) error {
	if from < 1 {
		return invalidQuery("from should be greater than 0")
	}
	if to.Below(from) {
		return invalidQuery("from should not be greater than to")
	}
	return nil
}

func ValidatePageSize(pageSize int) error {
	if pageSize <= 0 {
		return invalidQuery("pageSize should be greater than 0")
	}
	return nil
}

// ValidateTypeQuery checks the limit/offset pair of a query by aggregate type.
func ValidateTypeQuery(limit, offset int) error {
	if limit < 1 {
		return invalidQuery("limit should be greater than 0")
	}
	if offset < 0 {
		return invalidQuery("offset should be a positive number")
	}
	return nil
}
