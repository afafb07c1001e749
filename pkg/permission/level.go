package permission

import (
	"encoding/json"
	"fmt"
)

// Level is an ordered access tier. Comparisons are plain integer comparisons;
// nothing else is attached to individual levels.
type Level int

const (
	LevelNone   Level = 0
	LevelView   Level = 1
	LevelUpload Level = 2
	LevelFull   Level = 3
)

var levelNames = map[Level]string{
	LevelNone:   "none",
	LevelView:   "view",
	LevelUpload: "upload",
	LevelFull:   "full",
}

var levelsByName = map[string]Level{
	"none":   LevelNone,
	"view":   LevelView,
	"upload": LevelUpload,
	"full":   LevelFull,
}

// Valid reports whether l is one of the recognized levels
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// AtLeast reports whether l grants at least the given level
func (l Level) AtLeast(min Level) bool {
	return l >= min
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name to a Level
func ParseLevel(name string) (Level, error) {
	if level, ok := levelsByName[name]; ok {
		return level, nil
	}
	return LevelNone, fmt.Errorf("unknown permission level: %q", name)
}

// MaxLevel returns the higher of two levels
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// MarshalJSON encodes the level by name
func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid permission level %d", int(l))
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts either a level name or the raw integer value, since
// older clients send integers.
func (l *Level) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		level, err := ParseLevel(name)
		if err != nil {
			return err
		}
		*l = level
		return nil
	}

	var num int
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("permission level must be a string or integer")
	}
	level := Level(num)
	if !level.Valid() {
		return fmt.Errorf("unknown permission level: %d", num)
	}
	*l = level
	return nil
}
