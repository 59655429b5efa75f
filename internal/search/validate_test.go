package search_test

import (
	"errors"
	"testing"

	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilters_Valid(t *testing.T) {
	assert.NoError(t, search.ValidateFilters(search.SearchFilters{}))
	assert.NoError(t, search.ValidateFilters(search.SearchFilters{
		Name:      "Ivan",
		BirthDate: "1950-01-02",
		DeathDate: "2020-03-04",
		SortBy:    "views",
		SortOrder: "desc",
	}))
}

func TestValidateFilters_Invalid(t *testing.T) {
	err := search.ValidateFilters(search.SearchFilters{
		BirthDate: "02.01.1950",
		SortBy:    "age",
		SortOrder: "up",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "must be a date in YYYY-MM-DD format", verr.Fields["birthDate"])
	assert.Contains(t, verr.Fields["sortBy"], "must be one of")
	assert.Contains(t, verr.Fields["sortOrder"], "asc desc")
	assert.NotContains(t, verr.Fields, "deathDate")
}

func TestValidateFilters_DeathBeforeBirth(t *testing.T) {
	err := search.ValidateFilters(search.SearchFilters{BirthDate: "2000-01-01", DeathDate: "1999-12-31"})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"deathDate": "must not be before birth date"}, verr.Fields)
}
