package symbol

// BinanceConverter 将内部交易对转换为币安现货格式。
type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	return Compact(internal)
}

var Binance = BinanceConverter{}
