package reaper

import "runtime"

// highWaterMarkBytes is a conservative default threshold above which the
// reaper treats the process as "under memory pressure" and runs the
// LRU eviction fast path in addition to the regular TTL sweep.
const highWaterMarkBytes = 512 * 1024 * 1024

func defaultMemoryPressure() bool {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc > highWaterMarkBytes
}
