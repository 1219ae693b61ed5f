package thresher

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/codec"
	"github.com/lcalzada-xor/wsensor/internal/adapters/sniffer/sniffertest"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

func TestBuildRecordFull(t *testing.T) {
	sta := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	bssid := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	frame := sniffertest.Frame(sniffertest.Radiotap(5180, -60, true), sniffertest.WithFCS(sniffertest.QoSData(sta, bssid, 5, []byte("payload"))))
	slot := domain.FrameSlot{Owner: radioMAC, Index: 3, Len: len(frame), Seq: 42, TS: time.Unix(100, 0)}

	rec := BuildRecord("s1", slot, codec.Decode(frame))
	assert.Equal(t, "s1", rec.Session)
	assert.Equal(t, radioMAC, rec.Radio)
	assert.Equal(t, uint64(42), rec.Seq)
	assert.True(t, rec.RadiotapOK)
	assert.True(t, rec.MPDUOK)
	assert.Empty(t, rec.DecodeErr)

	assert.Equal(t, 5180, rec.Frequency)
	assert.Equal(t, 36, rec.Channel)
	assert.Equal(t, 6.0, rec.Rate)
	require.NotNil(t, rec.AntSignal)
	assert.Equal(t, int8(-60), *rec.AntSignal)
	assert.Nil(t, rec.TSFT)

	assert.Equal(t, "data", rec.FrameType)
	assert.Equal(t, bssid.String(), rec.Addr1)
	assert.Equal(t, sta.String(), rec.Addr2)
	assert.Empty(t, rec.Addr4)
	require.NotNil(t, rec.TID)
	assert.Equal(t, uint8(5), *rec.TID)
	require.NotNil(t, rec.SeqNo)
	assert.Equal(t, uint16(1), *rec.SeqNo)

	assert.Equal(t, 15+26, rec.HeaderLen)
	assert.Equal(t, len("payload"), rec.BodyLen)
	assert.Equal(t, 4, rec.FCSLen)
}

func TestBuildRecordElements(t *testing.T) {
	rec := BuildRecord("s1", domain.FrameSlot{Owner: radioMAC}, codec.Decode(beacon()))
	assert.Equal(t, "mgmt", rec.FrameType)
	assert.Equal(t, "lab", rec.SSID)
	require.Len(t, rec.Elements, 3)
	assert.Equal(t, uint8(1), rec.Elements[1].ID)
	assert.Equal(t, []float64{1, 2, 5.5, 11}, rec.Elements[1].Rates)
	assert.Equal(t, 6, rec.DSChannel)
	assert.Equal(t, "ess", rec.BSSType)
	assert.Equal(t, "WEP", rec.Security)
}

func TestBuildRecordCapability(t *testing.T) {
	bssid := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	withCapability := func(capab uint16, extra ...byte) []byte {
		mpdu := sniffertest.Beacon(bssid, "adhoc", 1, 1)
		binary.LittleEndian.PutUint16(mpdu[34:], capab)
		return sniffertest.Frame(sniffertest.MinimalRadiotap(), mpdu, extra)
	}

	open := BuildRecord("s1", domain.FrameSlot{}, codec.Decode(withCapability(codec.CapIBSS)))
	require.True(t, open.MPDUOK)
	assert.Equal(t, "ibss", open.BSSType)
	assert.Empty(t, open.Security)

	wpa := []byte{221, 8, 0x00, 0x50, 0xf2, 0x01, 0x01, 0x00, 0x00, 0x50}
	legacy := BuildRecord("s1", domain.FrameSlot{}, codec.Decode(withCapability(codec.CapESS|codec.CapPrivacy, wpa...)))
	assert.Equal(t, "ess", legacy.BSSType)
	assert.Equal(t, "WPA", legacy.Security)

	data := BuildRecord("s1", domain.FrameSlot{}, codec.Decode(sniffertest.Frame(sniffertest.MinimalRadiotap(), sniffertest.QoSData(bssid, bssid, 0, nil))))
	assert.Empty(t, data.BSSType)
}

func TestBuildRecordSecurity(t *testing.T) {
	bssid := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	rsn := []byte{
		48, 20,                             // element header
		0x01, 0x00,                         // version
		0x00, 0x0f, 0xac, 0x04,             // group CCMP
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x04, // pairwise CCMP
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x02, // akm PSK
		0x40, 0x00,                         // MFP required
	}
	frame := sniffertest.Frame(sniffertest.MinimalRadiotap(), sniffertest.Beacon(bssid, "corp", 11, 1), rsn)

	rec := BuildRecord("s1", domain.FrameSlot{Owner: radioMAC}, codec.Decode(frame))
	require.True(t, rec.MPDUOK)
	assert.Equal(t, "corp", rec.SSID)
	assert.Equal(t, 11, rec.DSChannel)
	assert.Equal(t, "CCMP/PSK/MFP", rec.Security)
}

func TestBuildRecordPartial(t *testing.T) {
	rtOnly := BuildRecord("s1", domain.FrameSlot{}, codec.RadiotapOnly{
		Radiotap: &codec.Radiotap{Length: 8},
		Err:      errors.New("short mpdu"),
	})
	assert.True(t, rtOnly.RadiotapOK)
	assert.False(t, rtOnly.MPDUOK)
	assert.Equal(t, "short mpdu", rtOnly.DecodeErr)
	assert.Equal(t, 8, rtOnly.HeaderLen)
	assert.Empty(t, rtOnly.FrameType)

	empty := BuildRecord("s1", domain.FrameSlot{}, codec.Empty{Err: errors.New("bad radiotap")})
	assert.False(t, empty.RadiotapOK)
	assert.Zero(t, empty.HeaderLen)
	assert.Zero(t, empty.BodyLen)
}
