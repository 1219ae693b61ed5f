package codec

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseElements(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		elems, truncated := ParseElements(nil)
		assert.Empty(t, elems)
		assert.False(t, truncated)
	})

	t.Run("dangling id byte", func(t *testing.T) {
		elems, truncated := ParseElements([]byte{0, 1, 'a', 3})
		assert.Len(t, elems, 1)
		assert.True(t, truncated)
	})

	t.Run("extended rates", func(t *testing.T) {
		elems, truncated := ParseElements([]byte{50, 2, 0x0c, 0x6c})
		require.Len(t, elems, 1)
		assert.False(t, truncated)
		assert.Equal(t, []Rate{{Mbps: 6}, {Mbps: 54}}, elems[0].Rates)
	})

	t.Run("short vendor element keeps raw data", func(t *testing.T) {
		elems, _ := ParseElements([]byte{221, 2, 0x00, 0x50})
		require.Len(t, elems, 1)
		assert.Nil(t, elems[0].OUI)
		assert.Equal(t, "", elems[0].OUIString())
		assert.Equal(t, 2, elems[0].Len())
	})

	t.Run("names", func(t *testing.T) {
		elems, _ := ParseElements([]byte{0, 0})
		require.Len(t, elems, 1)
		assert.Equal(t, layers.Dot11InformationElementIDSSID, elems[0].ID)
		assert.NotEmpty(t, elems[0].Name())
	})
}

func TestSSID(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		ssid   string
		hidden bool
	}{
		{"absent", []byte{3, 1, 6}, "", true},
		{"empty", []byte{0, 0}, "", true},
		{"zeroed", []byte{0, 3, 0, 0, 0}, "", true},
		{"plain", []byte{0, 4, 'h', 'o', 'm', 'e'}, "home", false},
		{"control bytes", []byte{0, 3, 'a', 0x01, 'b'}, "a.b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elems, _ := ParseElements(tt.raw)
			ssid, hidden := SSID(elems)
			assert.Equal(t, tt.ssid, ssid)
			assert.Equal(t, tt.hidden, hidden)
		})
	}
}

func TestParseRSN(t *testing.T) {
	data := []byte{
		0x01, 0x00,                                                 // version
		0x00, 0x0f, 0xac, 0x04,                                     // group CCMP
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x04,                         // pairwise CCMP
		0x02, 0x00, 0x00, 0x0f, 0xac, 0x02, 0x00, 0x0f, 0xac, 0x08, // PSK, SAE
		0x80, 0x00,                                                 // MFP capable
	}
	rsn, err := ParseRSN(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), rsn.Version)
	assert.Equal(t, "CCMP", rsn.GroupCipher)
	assert.Equal(t, []string{"CCMP"}, rsn.PairwiseCiphers)
	assert.Equal(t, []string{"PSK", "SAE"}, rsn.AKMSuites)
	assert.True(t, rsn.MFPCapable())
	assert.False(t, rsn.MFPRequired())
	assert.Equal(t, "CCMP/PSK+SAE", rsn.String())

	t.Run("truncated suites", func(t *testing.T) {
		rsn, err := ParseRSN(data[:9])
		require.NoError(t, err)
		assert.Equal(t, "CCMP", rsn.GroupCipher)
		assert.Empty(t, rsn.PairwiseCiphers)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ParseRSN([]byte{0x01})
		assert.ErrorIs(t, err, ErrShortRSN)
	})
}
