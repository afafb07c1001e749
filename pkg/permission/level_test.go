package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelOrdering(t *testing.T) {
	assert.True(t, LevelNone < LevelView)
	assert.True(t, LevelView < LevelUpload)
	assert.True(t, LevelUpload < LevelFull)

	assert.True(t, LevelUpload.AtLeast(LevelView))
	assert.True(t, LevelUpload.AtLeast(LevelUpload))
	assert.False(t, LevelView.AtLeast(LevelUpload))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("upload")
	require.NoError(t, err)
	assert.Equal(t, LevelUpload, level)

	_, err = ParseLevel("owner")
	assert.Error(t, err)
}

func TestLevelValid(t *testing.T) {
	assert.True(t, LevelNone.Valid())
	assert.True(t, LevelFull.Valid())
	assert.False(t, Level(4).Valid())
	assert.False(t, Level(-1).Valid())
}

func TestMaxLevel(t *testing.T) {
	assert.Equal(t, LevelUpload, MaxLevel(LevelView, LevelUpload))
	assert.Equal(t, LevelUpload, MaxLevel(LevelUpload, LevelView))
	assert.Equal(t, LevelNone, MaxLevel(LevelNone, LevelNone))
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(LevelView)
	require.NoError(t, err)
	assert.Equal(t, `"view"`, string(data))

	var byName Level
	require.NoError(t, json.Unmarshal([]byte(`"full"`), &byName))
	assert.Equal(t, LevelFull, byName)

	// Older clients send the raw integer.
	var byNumber Level
	require.NoError(t, json.Unmarshal([]byte(`2`), &byNumber))
	assert.Equal(t, LevelUpload, byNumber)

	var bad Level
	assert.Error(t, json.Unmarshal([]byte(`"owner"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`9`), &bad))
}
