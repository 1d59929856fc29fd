package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedex/internal/domain"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 1942, 1020,,472 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1942, 1020, 472}, ids)

	_, err = parseIDs("")
	assert.Error(t, err)

	_, err = parseIDs("1942,abc")
	assert.Error(t, err)

	_, err = parseIDs("0")
	assert.Error(t, err)
}

func TestBuildCommands(t *testing.T) {
	cmds, err := buildCommands(domain.CommandRemove, []int64{7346})
	require.NoError(t, err)
	assert.Equal(t, []domain.CollectionCommand{{Action: domain.CommandRemove, GameID: 7346}}, cmds)

	_, err = buildCommands("rate", []int64{7346})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
