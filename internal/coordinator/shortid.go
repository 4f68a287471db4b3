package coordinator

import (
	"hash/fnv"
	"log/slog"
	"strconv"
)

// shortIDLength keeps callback payloads well under Telegram's 64 byte limit.
const shortIDLength = 10

func shortID(merchantID string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(merchantID))
	id := strconv.FormatUint(h.Sum64(), 36)
	if len(id) > shortIDLength {
		id = id[:shortIDLength]
	}
	return id
}

// shortIDTable maps callback short ids back to merchant ids. Callers hold the
// coordinator lock.
type shortIDTable struct {
	ids map[string]string
}

func newShortIDTable() *shortIDTable {
	return &shortIDTable{ids: make(map[string]string)}
}

// put registers merchantID and returns its short id. A collision with a
// different merchant id is logged and the newer mapping wins.
func (t *shortIDTable) put(merchantID string) string {
	id := shortID(merchantID)
	if prev, ok := t.ids[id]; ok && prev != merchantID {
		slog.Warn("Short id collision, replacing mapping",
			"short_id", id,
			"previous", prev,
			"merchant_id", merchantID)
	}
	t.ids[id] = merchantID
	return id
}

func (t *shortIDTable) get(id string) (string, bool) {
	merchantID, ok := t.ids[id]
	return merchantID, ok
}

func (t *shortIDTable) forget(merchantID string) {
	id := shortID(merchantID)
	if t.ids[id] == merchantID {
		delete(t.ids, id)
	}
}
