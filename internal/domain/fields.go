package domain

// CoreMetaKeys maps client-facing core fields onto the meta key that stores
// them. The filter compiler and the projection both resolve through this
// map so a field filters on the same key it is written to.
var CoreMetaKeys = map[string]string{
	"sku":               "_sku",
	"price":             "_price",
	"regular_price":     "_regular_price",
	"sale_price":        "_sale_price",
	"date_on_sale_from": "_sale_price_dates_from",
	"date_on_sale_to":   "_sale_price_dates_to",
	"total_sales":       "total_sales",
	"virtual":           "_virtual",
	"downloadable":      "_downloadable",
	"download_limit":    "_download_limit",
	"download_expiry":   "_download_expiry",
	"external_url":      "_product_url",
	"button_text":       "_button_text",
	"tax_status":        "_tax_status",
	"tax_class":         "_tax_class",
	"manage_stock":      "_manage_stock",
	"stock_quantity":    "_stock",
	"stock_status":      "_stock_status",
	"backorders":        "_backorders",
	"low_stock_amount":  "_low_stock_amount",
	"sold_individually": "_sold_individually",
	"weight":            "_weight",
	"width":             "_width",
	"height":            "_height",
	"length":            "_length",
	"purchase_note":     "_purchase_note",
	"upsell_ids":        "_upsell_ids",
	"cross_sell_ids":    "_cross_sell_ids",
}
