package discovery

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTXT(t *testing.T) {
	t.Run("RequiredOnly", func(t *testing.T) {
		txt := EncodeTXT(&DeviceInfo{Name: "Lamp 0007", Suffix: "0007"})
		assert.Equal(t, TXTRecordMap{"name": "Lamp 0007", "suffix": "0007"}, txt)
	})

	t.Run("WithOptional", func(t *testing.T) {
		txt := EncodeTXT(&DeviceInfo{Name: "Lamp 0007", Suffix: "0007", Firmware: "1.2.0", Transport: "ble"})
		assert.Equal(t, "1.2.0", txt[TXTKeyFirmware])
		assert.Equal(t, "ble", txt[TXTKeyTransport])
	})
}

func TestDecodeTXT(t *testing.T) {
	tests := []struct {
		name    string
		txt     TXTRecordMap
		want    *DeviceInfo
		wantErr error
	}{
		{
			name: "Full",
			txt:  TXTRecordMap{"name": "Lamp 0007", "suffix": "0007", "fw": "1.2.0", "tp": "softap"},
			want: &DeviceInfo{Name: "Lamp 0007", Suffix: "0007", Firmware: "1.2.0", Transport: "softap"},
		},
		{
			name: "IgnoresUnknownKeys",
			txt:  TXTRecordMap{"name": "Lamp 0007", "suffix": "6389", "x": "y"},
			want: &DeviceInfo{Name: "Lamp 0007", Suffix: "6389"},
		},
		{
			name:    "MissingName",
			txt:     TXTRecordMap{"suffix": "0007"},
			wantErr: ErrMissingRequired,
		},
		{
			name:    "EmptyName",
			txt:     TXTRecordMap{"name": "", "suffix": "0007"},
			wantErr: ErrMissingRequired,
		},
		{
			name:    "MissingSuffix",
			txt:     TXTRecordMap{"name": "Lamp 0007"},
			wantErr: ErrMissingRequired,
		},
		{
			name:    "UppercaseSuffix",
			txt:     TXTRecordMap{"name": "Lamp 00AB", "suffix": "00AB"},
			wantErr: ErrInvalidSuffix,
		},
		{
			name:    "ShortSuffix",
			txt:     TXTRecordMap{"name": "Lamp 7", "suffix": "7"},
			wantErr: ErrInvalidSuffix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTXT(tt.txt)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTXTStrings(t *testing.T) {
	info := &DeviceInfo{Name: "Lamp 0007", Suffix: "0007", Firmware: "1.0.0"}
	strs := TXTRecordsToStrings(EncodeTXT(info))
	sort.Strings(strs)
	assert.Equal(t, []string{"fw=1.0.0", "name=Lamp 0007", "suffix=0007"}, strs)

	got, err := DecodeTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info, got)

	t.Run("ValueWithEquals", func(t *testing.T) {
		txt := StringsToTXTRecords([]string{"name=a=b", "flag", ""})
		assert.Equal(t, "a=b", txt["name"])
		v, ok := txt["flag"]
		assert.True(t, ok)
		assert.Empty(t, v)
		assert.Len(t, txt, 2)
	})
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("Lamp 0007"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInvalidInstanceName)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", MaxInstanceNameLen+1)), ErrInvalidInstanceName)
	assert.NoError(t, ValidateInstanceName(strings.Repeat("x", MaxInstanceNameLen)))
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"192.168.1.10"}, []string{"fe80::1", "192.168.1.10"})
	assert.Equal(t, []string{"192.168.1.10", "fe80::1"}, got)
}

func TestAnnouncerIdle(t *testing.T) {
	a := NewAnnouncer(AnnouncerConfig{})

	_, ok := a.Announced()
	assert.False(t, ok)
	assert.ErrorIs(t, a.Update(DeviceInfo{Name: "Lamp 0007", Suffix: "0007"}), ErrNotAnnounced)
	assert.ErrorIs(t, a.Announce(DeviceInfo{}), ErrInvalidInstanceName)

	a.Stop()
	a.Stop()
}
