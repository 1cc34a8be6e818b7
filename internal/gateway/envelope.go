package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"coinsignal/internal/model"
)

// Envelope is the websocket message carrying one symbol's signals.
type Envelope struct {
	Type    string                `json:"type"`
	Symbol  string                `json:"symbol"`
	Date    string                `json:"date"`
	Signals []model.TradingSignal `json:"signals"`
	TS      string                `json:"ts"`
	Seq     int64                 `json:"seq"`
	Initial bool                  `json:"initial,omitempty"`
}

// buildEnvelope hand-assembles the envelope around the marshalled signals to
// avoid re-encoding the fixed fields for every broadcast.
func buildEnvelope(u model.SignalUpdate, ts time.Time, seq int64, initial bool) []byte {
	signals := u.Signals
	if signals == nil {
		signals = []model.TradingSignal{}
	}
	data, _ := json.Marshal(signals)
	symbol, _ := json.Marshal(u.Symbol)
	date, _ := json.Marshal(u.Date)

	buf := make([]byte, 0, len(data)+len(symbol)+len(date)+128)
	buf = append(buf, `{"type":"signals","symbol":`...)
	buf = append(buf, symbol...)
	buf = append(buf, `,"date":`...)
	buf = append(buf, date...)
	buf = append(buf, `,"signals":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
