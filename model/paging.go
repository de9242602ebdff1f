// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

// AllPerPage signals the store to return all results, without paging.
const AllPerPage = -1

// Paging represent paging filter.
type Paging struct {
	Page           int
	PerPage        int
	IncludeDeleted bool
}

// AllPagesNotDeleted is a paging filter returning all not deleted elements.
func AllPagesNotDeleted() Paging {
	return Paging{
		Page:           0,
		PerPage:        AllPerPage,
		IncludeDeleted: false,
	}
}

// AllPagesWithDeleted is a paging filter returning all elements including deleted ones.
func AllPagesWithDeleted() Paging {
	return Paging{
		Page:           0,
		PerPage:        AllPerPage,
		IncludeDeleted: true,
	}
}
