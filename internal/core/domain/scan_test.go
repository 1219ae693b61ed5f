package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWidth(t *testing.T) {
	for _, w := range []Width{WidthNone, WidthHT20, WidthHT40Plus, WidthHT40Minus} {
		got, err := ParseWidth(w.String())
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}

	got, err := ParseWidth("ht40-")
	require.NoError(t, err)
	assert.Equal(t, WidthHT40Minus, got)

	_, err = ParseWidth("VHT80")
	assert.ErrorIs(t, err, ErrInvalidWidth)
}

func TestParseScanList(t *testing.T) {
	list, err := ParseScanList(" 1, 6:HT40+ ,,36:ht20")
	require.NoError(t, err)
	assert.Equal(t, []ScanEntry{
		{Channel: 1, Width: WidthNone},
		{Channel: 6, Width: WidthHT40Plus},
		{Channel: 36, Width: WidthHT20},
	}, list)
	assert.Equal(t, "6:HT40+", list[1].String())

	list, err = ParseScanList("1,6,1,11,6:HT20,6")
	require.NoError(t, err)
	assert.Equal(t, []ScanEntry{
		{Channel: 1, Width: WidthNone},
		{Channel: 6, Width: WidthNone},
		{Channel: 11, Width: WidthNone},
		{Channel: 6, Width: WidthHT20},
	}, list, "repeats keep their first position")

	list, err = ParseScanList("")
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, bad := range []string{"0", "-1", "a", "6:HT80"} {
		_, err := ParseScanList(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseScanState(t *testing.T) {
	for _, st := range []ScanState{StateScan, StateHold, StatePause, StateListen} {
		got, err := ParseScanState(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseScanState("idle")
	assert.Error(t, err)
}

func TestRadioRecord(t *testing.T) {
	_, err := NewRadioRecord("nope", RolePrimary, "wlan0mon")
	assert.ErrorIs(t, err, ErrInvalidMAC)
	_, err = NewRadioRecord("00:c0:ca:00:00:01", RolePrimary, "")
	assert.ErrorIs(t, err, ErrInvalidInterfaceName)

	r, err := NewRadioRecord("00:c0:ca:00:00:01", RoleSecondary, "wlan1mon")
	require.NoError(t, err)
	assert.Equal(t, RoleSecondary, r.Role)
	assert.False(t, r.Up.IsZero())

	r.Channels = []int{1, 6, 36, 11, 149}
	assert.Equal(t, []WiFiBand{Band24GHz, Band5GHz}, r.Bands())
}
