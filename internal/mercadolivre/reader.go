package mercadolivre

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// orderDateLayout is the timestamp format accepted by order.date_created.from.
const orderDateLayout = "2006-01-02T15:04:05.000-07:00"

// get performs an authenticated GET against the API and returns the raw body.
// HTTP 401 maps to ErrUnauthorized.
func (c *Client) get(ctx context.Context, path, accessToken string, params map[string]string) ([]byte, error) {
	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetBearerAuthToken(accessToken).
		Get(path)
	if err != nil {
		return nil, &TransportError{Op: "GET " + path, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	body := resp.Bytes()
	if !resp.IsSuccessState() {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, &TransportError{Op: "GET " + path, Err: fmt.Errorf("invalid JSON response")}
	}
	return body, nil
}

// searchItemIDs returns the first page of item ids for a seller search.
func (c *Client) searchItemIDs(ctx context.Context, accessToken, userID string, params map[string]string) ([]string, error) {
	path := "/users/" + url.PathEscape(userID) + "/items/search"
	body, err := c.get(ctx, path, accessToken, params)
	if err != nil {
		return nil, err
	}

	var ids []string
	gjson.GetBytes(body, "results").ForEach(func(_, v gjson.Result) bool {
		if id := v.String(); id != "" {
			ids = append(ids, id)
		}
		return true
	})
	return ids, nil
}

// multiget fetches item details in batches of MultigetBatch ids.
func (c *Client) multiget(ctx context.Context, accessToken string, ids []string) ([]gjson.Result, error) {
	var items []gjson.Result
	for start := 0; start < len(ids); start += c.config.MultigetBatch {
		end := min(start+c.config.MultigetBatch, len(ids))
		body, err := c.get(ctx, "/items", accessToken, map[string]string{
			"ids": strings.Join(ids[start:end], ","),
		})
		if err != nil {
			return nil, err
		}
		gjson.GetBytes(body, "#.body").ForEach(func(_, v gjson.Result) bool {
			if v.Get("id").Exists() {
				items = append(items, v)
			}
			return true
		})
	}
	return items, nil
}

func toStockItem(body gjson.Result) StockItem {
	id := body.Get("id").String()
	sku := body.Get("seller_custom_field").String()
	if sku == "" {
		sku = id
	}
	return StockItem{
		MarketplaceItemID: id,
		Title:             body.Get("title").String(),
		SKU:               sku,
		StockFull:         int(body.Get("available_quantity").Int()),
		Permalink:         body.Get("permalink").String(),
		Thumbnail:         body.Get("thumbnail").String(),
		LogisticType:      body.Get("shipping.logistic_type").String(),
	}
}

// FetchFulfillmentStock lists the seller's items stocked in Full warehouses
// with their available quantity.
func (c *Client) FetchFulfillmentStock(ctx context.Context, accessToken, userID string) ([]StockItem, error) {
	ids, err := c.searchItemIDs(ctx, accessToken, userID, map[string]string{
		"logistic_type": LogisticFulfillment,
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	bodies, err := c.multiget(ctx, accessToken, ids)
	if err != nil {
		return nil, err
	}

	items := make([]StockItem, 0, len(bodies))
	for _, b := range bodies {
		items = append(items, toStockItem(b))
	}
	c.log.Debug("fetched fulfillment stock", zap.String("user_id", userID), zap.Int("items", len(items)))
	return items, nil
}

// FetchActiveListings lists all active listings. StockFull is the available
// quantity for fulfillment listings and zero for everything else.
func (c *Client) FetchActiveListings(ctx context.Context, accessToken, userID string) ([]StockItem, error) {
	ids, err := c.searchItemIDs(ctx, accessToken, userID, map[string]string{
		"status": "active",
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	bodies, err := c.multiget(ctx, accessToken, ids)
	if err != nil {
		return nil, err
	}

	items := make([]StockItem, 0, len(bodies))
	for _, b := range bodies {
		item := toStockItem(b)
		if item.LogisticType != LogisticFulfillment {
			item.StockFull = 0
		}
		items = append(items, item)
	}
	c.log.Debug("fetched active listings", zap.String("user_id", userID), zap.Int("items", len(items)))
	return items, nil
}

// FetchSalesHistory sums order line quantities over the trailing sales window
// grouped by SKU and order day.
func (c *Client) FetchSalesHistory(ctx context.Context, accessToken, sellerID string) (SalesHistory, error) {
	from := c.now().UTC().AddDate(0, 0, -c.config.SalesWindowDays)
	body, err := c.get(ctx, "/orders/search", accessToken, map[string]string{
		"seller":                  sellerID,
		"order.date_created.from": from.Format(orderDateLayout),
	})
	if err != nil {
		return nil, err
	}

	history := make(SalesHistory)
	gjson.GetBytes(body, "results").ForEach(func(_, order gjson.Result) bool {
		day, _, _ := strings.Cut(order.Get("date_created").String(), "T")
		if day == "" {
			return true
		}
		order.Get("order_items").ForEach(func(_, line gjson.Result) bool {
			sku := line.Get("item.seller_custom_field").String()
			if sku == "" {
				sku = line.Get("item.id").String()
			}
			if qty := int(line.Get("quantity").Int()); sku != "" && qty > 0 {
				history.Add(sku, day, qty)
			}
			return true
		})
		return true
	})
	return history, nil
}
