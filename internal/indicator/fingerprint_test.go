package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coinsignal/internal/model"
)

func TestFingerprint(t *testing.T) {
	prices := []model.HistoricalPrice{{Date: "2024-01-01", Price: 1}, {Date: "2024-01-02", Price: 2}}
	p := DefaultParams()

	fp := Fingerprint(prices, p)
	assert.Len(t, fp, 24)
	assert.Equal(t, fp, Fingerprint(append([]model.HistoricalPrice(nil), prices...), p))

	changed := append([]model.HistoricalPrice(nil), prices...)
	changed[1].Price = 2.0000001
	assert.NotEqual(t, fp, Fingerprint(changed, p))

	p2 := p
	p2.RSIPeriod = 7
	assert.NotEqual(t, fp, Fingerprint(prices, p2))

	withVol := append([]model.HistoricalPrice(nil), prices...)
	withVol[0].Volume = 99
	assert.Equal(t, fp, Fingerprint(withVol, p))
}
