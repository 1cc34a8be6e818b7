package indicator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"coinsignal/internal/model"
)

// Fingerprint identifies a price series together with the parameters applied
// to it, so a cached bundle is reused only for identical inputs. Volume and
// OHLC fields do not take part.
func Fingerprint(prices []model.HistoricalPrice, p Params) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d/%d/%d/%d/%d/%g|", p.RSIPeriod, p.MACDFast, p.MACDSlow, p.MACDSignal, p.BollingerPeriod, p.BollingerK)
	buf := make([]byte, 0, 64)
	for _, pr := range prices {
		buf = buf[:0]
		buf = append(buf, pr.Date...)
		buf = append(buf, '=')
		buf = strconv.AppendFloat(buf, pr.Price, 'g', -1, 64)
		buf = append(buf, ';')
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
