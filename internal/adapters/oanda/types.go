package oanda

// Wire types of the OANDA v20 REST API (https://developer.oanda.com/rest-live-v20/).

type priceBucket struct {
	Price string `json:"price"`
}

type conversionFactors struct {
	PositiveUnits string `json:"positiveUnits"`
	NegativeUnits string `json:"negativeUnits"`
}

type clientPrice struct {
	Instrument                 string             `json:"instrument"`
	Time                       string             `json:"time"`
	Tradeable                  bool               `json:"tradeable"`
	Bids                       []priceBucket      `json:"bids"`
	Asks                       []priceBucket      `json:"asks"`
	QuoteHomeConversionFactors *conversionFactors `json:"quoteHomeConversionFactors,omitempty"`
}

type pricingResponse struct {
	Prices []clientPrice `json:"prices"`
	Time   string        `json:"time"`
}

type accountSummary struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type accountSummaryResponse struct {
	Account accountSummary `json:"account"`
}

type instrument struct {
	Name                string `json:"name"`
	DisplayPrecision    int    `json:"displayPrecision"`
	TradeUnitsPrecision int    `json:"tradeUnitsPrecision"`
	MinimumTradeSize    string `json:"minimumTradeSize"`
	MaximumOrderUnits   string `json:"maximumOrderUnits"`
}

type instrumentsResponse struct {
	Instruments []instrument `json:"instruments"`
}

type clientExtensions struct {
	ID      string `json:"id,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type priceDetails struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

type orderRequest struct {
	Type                  string            `json:"type"`
	Instrument            string            `json:"instrument"`
	Units                 string            `json:"units"`
	Price                 string            `json:"price,omitempty"`
	TimeInForce           string            `json:"timeInForce"`
	GtdTime               string            `json:"gtdTime,omitempty"`
	PositionFill          string            `json:"positionFill"`
	StopLossOnFill        *priceDetails     `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill      *priceDetails     `json:"takeProfitOnFill,omitempty"`
	ClientExtensions      *clientExtensions `json:"clientExtensions,omitempty"`
	TradeClientExtensions *clientExtensions `json:"tradeClientExtensions,omitempty"`
}

type orderEnvelope struct {
	Order orderRequest `json:"order"`
}

type tradeOpened struct {
	TradeID string `json:"tradeID"`
}

type transaction struct {
	ID          string       `json:"id"`
	Time        string       `json:"time"`
	Price       string       `json:"price"`
	Reason      string       `json:"reason"`
	TradeOpened *tradeOpened `json:"tradeOpened,omitempty"`
}

type orderCreateResponse struct {
	OrderCreateTransaction *transaction `json:"orderCreateTransaction"`
	OrderFillTransaction   *transaction `json:"orderFillTransaction"`
	OrderCancelTransaction *transaction `json:"orderCancelTransaction"`
}

type dependentOrder struct {
	ID    string `json:"id"`
	Price string `json:"price"`
}

type trade struct {
	ID               string            `json:"id"`
	Instrument       string            `json:"instrument"`
	Price            string            `json:"price"`
	OpenTime         string            `json:"openTime"`
	CurrentUnits     string            `json:"currentUnits"`
	ClientExtensions *clientExtensions `json:"clientExtensions,omitempty"`
	StopLossOrder    *dependentOrder   `json:"stopLossOrder,omitempty"`
	TakeProfitOrder  *dependentOrder   `json:"takeProfitOrder,omitempty"`
}

type tradesResponse struct {
	Trades []trade `json:"trades"`
}

type tradeResponse struct {
	Trade trade `json:"trade"`
}

type pendingOrder struct {
	ID                    string            `json:"id"`
	Type                  string            `json:"type"`
	Instrument            string            `json:"instrument"`
	Units                 string            `json:"units"`
	Price                 string            `json:"price"`
	CreateTime            string            `json:"createTime"`
	State                 string            `json:"state"`
	StopLossOnFill        *priceDetails     `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill      *priceDetails     `json:"takeProfitOnFill,omitempty"`
	ClientExtensions      *clientExtensions `json:"clientExtensions,omitempty"`
	TradeClientExtensions *clientExtensions `json:"tradeClientExtensions,omitempty"`
}

type ordersResponse struct {
	Orders []pendingOrder `json:"orders"`
}

type orderResponse struct {
	Order pendingOrder `json:"order"`
}

type tradeOrdersRequest struct {
	StopLoss   *priceDetails `json:"stopLoss,omitempty"`
	TakeProfit *priceDetails `json:"takeProfit,omitempty"`
}

type apiError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}
