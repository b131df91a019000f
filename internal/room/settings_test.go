package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefox-project/bluefox/internal/protocol"
)

func sampleSettings() Settings {
	return Settings{
		Name:             "Skirmish",
		LobbyType:        1,
		VersionKey:       "1.4.2",
		GameSetup:        2,
		RulesSet:         1,
		ReplayEnabled:    true,
		MapLocation:      7,
		HQExclusion:      [HQExclusionSlots]bool{true, false, true},
		AIPlayers:        true,
		MapSize:          3,
		TerrainClass:     2,
		GameSpeed:        1,
		CustomMapName:    "canyon_4p",
		RandomSeed:       123456789,
		Latitude:         -45,
		ResourceMinimum:  2,
		ResourcePresence: 3,
		ColonyClass:      1,
		GameOptions:      []bool{true, true, false, true},
		TeamAssignments: map[string]int32{
			"steam:76561190001@10.0.0.1:27001": 1,
			"steam:76561190002@10.0.0.2:27002": 2,
		},
		Handicaps: map[string]int32{
			"steam:76561190001@10.0.0.1:27001": 0,
			"steam:76561190002@10.0.0.2:27002": 25,
		},
	}
}

func TestSettingsRoundTripThroughWire(t *testing.T) {
	in := sampleSettings()

	// Encode to bytes and back so the full codec path is exercised,
	// not just the in-memory array shape.
	raw := protocol.Encode(in.Encode().Value())
	val, n, err := protocol.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)

	arr, ok := val.Array()
	require.True(t, ok)
	require.Equal(t, SettingsFieldCount, arr.Size())

	out, err := DecodeSettings(arr)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSettingsEncodeEmptyDefaults(t *testing.T) {
	var in Settings
	arr := in.Encode()
	require.Equal(t, SettingsFieldCount, arr.Size())

	out, err := DecodeSettings(arr)
	require.NoError(t, err)
	assert.Equal(t, [HQExclusionSlots]bool{}, out.HQExclusion)
	assert.Empty(t, out.GameOptions)
	assert.Empty(t, out.TeamAssignments)
	assert.Empty(t, out.Handicaps)
}

func TestSettingsMapEncodingIsDeterministic(t *testing.T) {
	in := sampleSettings()
	a := protocol.Encode(in.Encode().Value())
	b := protocol.Encode(in.Encode().Value())
	assert.Equal(t, a, b)
}

func TestDecodeSettingsRejectsWrongFieldCount(t *testing.T) {
	arr := protocol.NewArray().AddString("short")
	_, err := DecodeSettings(arr)
	assert.ErrorIs(t, err, protocol.ErrMalformedWireData)

	_, err = DecodeSettings(nil)
	assert.ErrorIs(t, err, protocol.ErrMalformedWireData)
}

func TestDecodeSettingsRejectsWrongFieldType(t *testing.T) {
	arr := sampleSettings().Encode()
	items := arr.Items()
	items[1] = protocol.String("not an int")

	_, err := DecodeSettings(arr)
	assert.ErrorIs(t, err, protocol.ErrMalformedWireData)
	assert.Contains(t, err.Error(), "field 1")
}

func TestDecodeSettingsRejectsWrongHQLength(t *testing.T) {
	arr := sampleSettings().Encode()
	arr.Items()[7] = protocol.BoolArray([]bool{true})

	_, err := DecodeSettings(arr)
	assert.ErrorIs(t, err, protocol.ErrMalformedWireData)
}

func TestSettingsCloneIsIndependent(t *testing.T) {
	in := sampleSettings()
	cp := in.clone()

	cp.GameOptions[0] = false
	cp.TeamAssignments["steam:76561190001@10.0.0.1:27001"] = 99
	cp.Handicaps["steam:76561190001@10.0.0.1:27001"] = 99

	assert.True(t, in.GameOptions[0])
	assert.Equal(t, int32(1), in.TeamAssignments["steam:76561190001@10.0.0.1:27001"])
	assert.Equal(t, int32(0), in.Handicaps["steam:76561190001@10.0.0.1:27001"])
}
