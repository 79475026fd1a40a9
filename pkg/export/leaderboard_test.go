package export

import (
	"bytes"
	"testing"

	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLeaderboardXLSX(t *testing.T) {
	entries := []referral.Entry{
		{Rank: 1, Name: "Ravi", Organization: "IIT Delhi", ReferralCount: 4},
		{Rank: 2, Name: "Asha", ReferralCount: 2},
		{Rank: 2, Name: "Meera", ReferralCount: 2},
	}

	data, err := LeaderboardXLSX(entries)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Rank", "Name", "Organization", "Referral Count"}, rows[0])
	assert.Equal(t, []string{"1", "Ravi", "IIT Delhi", "4"}, rows[1])
	assert.Equal(t, "Meera", rows[3][1])
	assert.Equal(t, "2", rows[3][0])
}

func TestLeaderboardXLSX_Empty(t *testing.T) {
	data, err := LeaderboardXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
