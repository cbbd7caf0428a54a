package validation

import (
	"errors"
	"testing"

	"moodledger/internal/apperrors"
	"moodledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldCodes(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve), "expected a validation error, got %v", err)
	codes := make(map[string]string, len(ve.Fields))
	for _, f := range ve.Fields {
		codes[f.Field] = f.Code
	}
	return codes
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(&models.MoodEntry{
		Date:      "2024-02-30",
		MoodValue: 0,
		Tags:      []string{"work", "work"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))

	codes := fieldCodes(t, err)
	assert.Equal(t, "isodate", codes["date"])
	assert.Equal(t, "min", codes["moodValue"])
	assert.Equal(t, "unique", codes["tags"])
}

func TestValidateStructAcceptsValidEntry(t *testing.T) {
	assert.NoError(t, ValidateStruct(&models.MoodEntry{
		Date:      "2024-02-29",
		MoodValue: 5,
		Tags:      []string{"family", "sun"},
	}))
	assert.NoError(t, ValidateStruct(nil))
	assert.Error(t, ValidateStruct("not a struct"))
}

func TestValidateDate(t *testing.T) {
	for _, ok := range []string{"2024-01-01", "2024-02-29"} {
		assert.NoError(t, ValidateDate(ok), ok)
	}
	for _, bad := range []string{"", "2024-1-01", "2023-02-29", "01/02/2024", "2024-01-01T00:00:00Z"} {
		err := ValidateDate(bad)
		assert.True(t, apperrors.IsValidationError(err), bad)
	}
}
