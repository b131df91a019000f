package room

import (
	"fmt"
	"sort"

	"github.com/bluefox-project/bluefox/internal/protocol"
)

// SettingsFieldCount is the fixed number of positional elements in the
// settings wire array. The client rejects anything else.
const SettingsFieldCount = 21

// HQExclusionSlots is the fixed length of the per-team HQ exclusion array.
const HQExclusionSlots = 8

// Settings is the 21-field lobby settings structure. Field order mirrors
// the wire array exactly; see Encode.
type Settings struct {
	Name             string
	LobbyType        int32
	VersionKey       string
	GameSetup        int32
	RulesSet         int32
	ReplayEnabled    bool
	MapLocation      int32
	HQExclusion      [HQExclusionSlots]bool
	AIPlayers        bool
	MapSize          int32
	TerrainClass     int32
	GameSpeed        int32
	CustomMapName    string
	RandomSeed       int32
	Latitude         int32
	ResourceMinimum  int32
	ResourcePresence int32
	ColonyClass      int32
	GameOptions      []bool

	// The trailing maps are keyed by the stringified player identity.
	TeamAssignments map[string]int32
	Handicaps       map[string]int32
}

// clone returns a deep copy so registry snapshots never alias live maps.
func (s Settings) clone() Settings {
	out := s
	out.GameOptions = append([]bool(nil), s.GameOptions...)
	out.TeamAssignments = copyInt32Map(s.TeamAssignments)
	out.Handicaps = copyInt32Map(s.Handicaps)
	return out
}

func copyInt32Map(m map[string]int32) map[string]int32 {
	if m == nil {
		return nil
	}
	out := make(map[string]int32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Encode renders the settings as the 21-element positional wire array.
// The trailing maps become nested objects with keys in sorted order so
// encoding is deterministic.
func (s Settings) Encode() *protocol.Array {
	hq := make([]bool, HQExclusionSlots)
	copy(hq, s.HQExclusion[:])

	opts := s.GameOptions
	if opts == nil {
		opts = []bool{}
	}

	arr := protocol.NewArray().
		AddString(s.Name).
		AddInt(s.LobbyType).
		AddString(s.VersionKey).
		AddInt(s.GameSetup).
		AddInt(s.RulesSet).
		AddBool(s.ReplayEnabled).
		AddInt(s.MapLocation).
		Add(protocol.BoolArray(hq)).
		AddBool(s.AIPlayers).
		AddInt(s.MapSize).
		AddInt(s.TerrainClass).
		AddInt(s.GameSpeed).
		AddString(s.CustomMapName).
		AddInt(s.RandomSeed).
		AddInt(s.Latitude).
		AddInt(s.ResourceMinimum).
		AddInt(s.ResourcePresence).
		AddInt(s.ColonyClass).
		Add(protocol.BoolArray(opts)).
		Add(encodeInt32Map(s.TeamAssignments).Value()).
		Add(encodeInt32Map(s.Handicaps).Value())

	return arr
}

// DecodeSettings parses the 21-element positional wire array.
func DecodeSettings(arr *protocol.Array) (Settings, error) {
	var s Settings
	if arr == nil || arr.Size() != SettingsFieldCount {
		size := 0
		if arr != nil {
			size = arr.Size()
		}
		return s, fmt.Errorf("%w: settings array has %d elements, want %d",
			protocol.ErrMalformedWireData, size, SettingsFieldCount)
	}

	var ok bool
	items := arr.Items()

	if s.Name, ok = items[0].AsString(); !ok {
		return s, settingsFieldError(0, "name")
	}
	if s.LobbyType, ok = items[1].Int(); !ok {
		return s, settingsFieldError(1, "lobby type")
	}
	if s.VersionKey, ok = items[2].AsString(); !ok {
		return s, settingsFieldError(2, "version key")
	}
	if s.GameSetup, ok = items[3].Int(); !ok {
		return s, settingsFieldError(3, "game setup")
	}
	if s.RulesSet, ok = items[4].Int(); !ok {
		return s, settingsFieldError(4, "rules set")
	}
	if s.ReplayEnabled, ok = items[5].Bool(); !ok {
		return s, settingsFieldError(5, "replay flag")
	}
	if s.MapLocation, ok = items[6].Int(); !ok {
		return s, settingsFieldError(6, "map location")
	}

	hq, ok := items[7].BoolArrayValue()
	if !ok || len(hq) != HQExclusionSlots {
		return s, settingsFieldError(7, "hq exclusion")
	}
	copy(s.HQExclusion[:], hq)

	if s.AIPlayers, ok = items[8].Bool(); !ok {
		return s, settingsFieldError(8, "ai players flag")
	}
	if s.MapSize, ok = items[9].Int(); !ok {
		return s, settingsFieldError(9, "map size")
	}
	if s.TerrainClass, ok = items[10].Int(); !ok {
		return s, settingsFieldError(10, "terrain class")
	}
	if s.GameSpeed, ok = items[11].Int(); !ok {
		return s, settingsFieldError(11, "game speed")
	}
	if s.CustomMapName, ok = items[12].AsString(); !ok {
		return s, settingsFieldError(12, "custom map name")
	}
	if s.RandomSeed, ok = items[13].Int(); !ok {
		return s, settingsFieldError(13, "random seed")
	}
	if s.Latitude, ok = items[14].Int(); !ok {
		return s, settingsFieldError(14, "latitude")
	}
	if s.ResourceMinimum, ok = items[15].Int(); !ok {
		return s, settingsFieldError(15, "resource minimum")
	}
	if s.ResourcePresence, ok = items[16].Int(); !ok {
		return s, settingsFieldError(16, "resource presence")
	}
	if s.ColonyClass, ok = items[17].Int(); !ok {
		return s, settingsFieldError(17, "colony class")
	}
	if s.GameOptions, ok = items[18].BoolArrayValue(); !ok {
		return s, settingsFieldError(18, "game options")
	}

	teams, ok := items[19].Object()
	if !ok {
		return s, settingsFieldError(19, "team assignments")
	}
	if s.TeamAssignments, ok = decodeInt32Map(teams); !ok {
		return s, settingsFieldError(19, "team assignments")
	}

	handicaps, ok := items[20].Object()
	if !ok {
		return s, settingsFieldError(20, "handicaps")
	}
	if s.Handicaps, ok = decodeInt32Map(handicaps); !ok {
		return s, settingsFieldError(20, "handicaps")
	}

	return s, nil
}

func settingsFieldError(index int, name string) error {
	return fmt.Errorf("%w: settings field %d (%s) has wrong type",
		protocol.ErrMalformedWireData, index, name)
}

func encodeInt32Map(m map[string]int32) *protocol.Object {
	obj := protocol.NewObject()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		obj.PutInt(k, m[k])
	}
	return obj
}

func decodeInt32Map(obj *protocol.Object) (map[string]int32, bool) {
	out := make(map[string]int32, obj.Size())
	for _, k := range obj.Keys() {
		v, ok := obj.GetInt(k)
		if !ok {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}
