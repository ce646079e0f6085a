package timeapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_MarshalJSON(t *testing.T) {
	location, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 10, 30, 15, 123, location)

	b, err := json.Marshal(Time(at))
	require.NoError(t, err)
	assert.Equal(t, `"`+at.UTC().Format(time.RFC3339)+`"`, string(b))

	var res Time
	require.NoError(t, json.Unmarshal(b, &res))
	assert.True(t, at.Truncate(time.Second).Equal(time.Time(res)))
}

func TestTime_UnmarshalJSON_Invalid(t *testing.T) {
	var res Time
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &res))
	assert.Error(t, json.Unmarshal([]byte(`12`), &res))
}
