package kvstore

import "fmt"

// Engine names accepted by OpenEngine.
const (
	EngineLevelDB = "leveldb"
	EnginePebble  = "pebble"
	EngineBadger  = "badger"
)

// OpenEngine opens the named engine rooted at path. An empty path opens the
// engine in memory.
func OpenEngine(engine, path string) (KV, error) {
	switch engine {
	case EngineLevelDB:
		if path == "" {
			return NewMemLevelDB()
		}
		return OpenLevelDB(path)
	case EnginePebble:
		if path == "" {
			return NewMemPebble()
		}
		return OpenPebble(path)
	case EngineBadger:
		if path == "" {
			return NewMemBadger()
		}
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown kv engine %q", engine)
	}
}
