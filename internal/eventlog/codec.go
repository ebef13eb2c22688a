package eventlog

import (
	"encoding/json"

	"github.com/ag3ntum/ag3ntum/pkg/types"
)

func marshalEvent(ev types.Event) ([]byte, error) {
	return json.Marshal(ev)
}

func unmarshalEvent(payload []byte) (types.Event, error) {
	var ev types.Event
	err := json.Unmarshal(payload, &ev)
	return ev, err
}
