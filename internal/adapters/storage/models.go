package storage

import (
	"encoding/json"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// SessionModel is one sensor run.
type SessionModel struct {
	ID       string `gorm:"primaryKey;size:36"`
	Hostname string
	Kernel   string
	Start    time.Time
	Stop     *time.Time
}

// RadioModel is one radio-up period within a session.
type RadioModel struct {
	ID        uint   `gorm:"primaryKey"`
	Session   string `gorm:"index;size:36"`
	MAC       string `gorm:"index;size:17"`
	Role      string `gorm:"size:3"`
	Phy       string
	NIC       string
	VNIC      string
	Driver    string
	Chipset   string
	Standards string
	Channels  string // JSON encoded []int
	ScanList  string // JSON encoded []domain.ScanEntry
	Spoofed   bool
	Record    bool
	Up        time.Time
	Down      *time.Time
}

// AntennaModel is the antenna configuration reported for a radio.
type AntennaModel struct {
	ID      uint   `gorm:"primaryKey"`
	Session string `gorm:"index;size:36"`
	MAC     string `gorm:"size:17"`
	Count   int
	Gain    float64
	Type    string
	Loss    float64
	XYZ     string
	At      time.Time
}

// FrameModel is one decoded frame.
type FrameModel struct {
	ID      uint      `gorm:"primaryKey"`
	Session string    `gorm:"index;size:36"`
	Radio   string    `gorm:"index;size:17"`
	TS      time.Time `gorm:"index"`
	Seq     uint64
	Len     int

	RadiotapOK bool
	MPDUOK     bool `gorm:"column:mpdu_ok"`
	DecodeErr  string

	HeaderLen int
	BodyLen   int
	FCSLen    int `gorm:"column:fcs_len"`

	Present   uint32
	RTFlags   uint8
	Rate      float64
	Frequency int
	Channel   int `gorm:"index"`
	ChanFlags uint16
	AntSignal *int8
	AntNoise  *int8
	Antenna   *uint8
	BadFCS    bool    `gorm:"column:bad_fcs"`
	TSFT      *uint64 `gorm:"column:tsft"`
	MCSIndex  *uint8  `gorm:"column:mcs_index"`
	VHTBand   *uint8  `gorm:"column:vht_band"`

	FrameType string `gorm:"index"`
	Subtype   string
	Flags     uint8
	Duration  uint16
	Addr1     string `gorm:"size:17"`
	Addr2     string `gorm:"index;size:17"`
	Addr3     string `gorm:"size:17"`
	Addr4     string `gorm:"size:17"`
	FragNo    *uint8
	SeqNo     *uint16
	TID       *uint8 `gorm:"column:tid"`
	Truncated bool
	SSID      string `gorm:"column:ssid"`
	DSChannel int    `gorm:"column:ds_channel"`
	Security  string
	BSSType   string `gorm:"column:bss_type;size:4"`
	Elements  string // JSON encoded []domain.ElementSummary
}

// LocationModel is one location fix.
type LocationModel struct {
	ID        uint   `gorm:"primaryKey"`
	Session   string `gorm:"index;size:36"`
	Latitude  float64
	Longitude float64
	Altitude  float64
	Source    string
	TS        time.Time
}

func allModels() []any {
	return []any{&SessionModel{}, &RadioModel{}, &AntennaModel{}, &FrameModel{}, &LocationModel{}}
}

func toRadioModel(session string, r domain.RadioRecord) RadioModel {
	channels, _ := json.Marshal(r.Channels)
	scan, _ := json.Marshal(r.ScanList)
	return RadioModel{
		Session:   session,
		MAC:       r.MAC,
		Role:      string(r.Role),
		Phy:       r.Phy,
		NIC:       r.NIC,
		VNIC:      r.VNIC,
		Driver:    r.Driver,
		Chipset:   r.Chipset,
		Standards: r.Standards,
		Channels:  string(channels),
		ScanList:  string(scan),
		Spoofed:   r.Spoofed,
		Record:    r.Record,
		Up:        r.Up,
	}
}

func toFrameModel(f domain.FrameRecord) FrameModel {
	m := FrameModel{
		Session:    f.Session,
		Radio:      f.Radio,
		TS:         f.TS,
		Seq:        f.Seq,
		Len:        f.Len,
		RadiotapOK: f.RadiotapOK,
		MPDUOK:     f.MPDUOK,
		DecodeErr:  f.DecodeErr,
		HeaderLen:  f.HeaderLen,
		BodyLen:    f.BodyLen,
		FCSLen:     f.FCSLen,
		Present:    f.Present,
		RTFlags:    f.RTFlags,
		Rate:       f.Rate,
		Frequency:  f.Frequency,
		Channel:    f.Channel,
		ChanFlags:  f.ChanFlags,
		AntSignal:  f.AntSignal,
		AntNoise:   f.AntNoise,
		Antenna:    f.Antenna,
		BadFCS:     f.BadFCS,
		TSFT:       f.TSFT,
		MCSIndex:   f.MCSIndex,
		VHTBand:    f.VHTBand,
		FrameType:  f.FrameType,
		Subtype:    f.Subtype,
		Flags:      f.Flags,
		Duration:   f.Duration,
		Addr1:      f.Addr1,
		Addr2:      f.Addr2,
		Addr3:      f.Addr3,
		Addr4:      f.Addr4,
		FragNo:     f.FragNo,
		SeqNo:      f.SeqNo,
		TID:        f.TID,
		Truncated:  f.Truncated,
		SSID:       f.SSID,
		DSChannel:  f.DSChannel,
		Security:   f.Security,
		BSSType:    f.BSSType,
	}
	if len(f.Elements) > 0 {
		if b, err := json.Marshal(f.Elements); err == nil {
			m.Elements = string(b)
		}
	}
	return m
}

func toFrameRecord(m FrameModel) domain.FrameRecord {
	f := domain.FrameRecord{
		Session:    m.Session,
		Radio:      m.Radio,
		TS:         m.TS,
		Seq:        m.Seq,
		Len:        m.Len,
		RadiotapOK: m.RadiotapOK,
		MPDUOK:     m.MPDUOK,
		DecodeErr:  m.DecodeErr,
		HeaderLen:  m.HeaderLen,
		BodyLen:    m.BodyLen,
		FCSLen:     m.FCSLen,
		Present:    m.Present,
		RTFlags:    m.RTFlags,
		Rate:       m.Rate,
		Frequency:  m.Frequency,
		Channel:    m.Channel,
		ChanFlags:  m.ChanFlags,
		AntSignal:  m.AntSignal,
		AntNoise:   m.AntNoise,
		Antenna:    m.Antenna,
		BadFCS:     m.BadFCS,
		TSFT:       m.TSFT,
		MCSIndex:   m.MCSIndex,
		VHTBand:    m.VHTBand,
		FrameType:  m.FrameType,
		Subtype:    m.Subtype,
		Flags:      m.Flags,
		Duration:   m.Duration,
		Addr1:      m.Addr1,
		Addr2:      m.Addr2,
		Addr3:      m.Addr3,
		Addr4:      m.Addr4,
		FragNo:     m.FragNo,
		SeqNo:      m.SeqNo,
		TID:        m.TID,
		Truncated:  m.Truncated,
		SSID:       m.SSID,
		DSChannel:  m.DSChannel,
		Security:   m.Security,
		BSSType:    m.BSSType,
	}
	if m.Elements != "" {
		_ = json.Unmarshal([]byte(m.Elements), &f.Elements)
	}
	return f
}
