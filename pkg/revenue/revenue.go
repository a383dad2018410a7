// Package revenue aggregates delivered orders into reporting views: totals
// for a period window, a ranked product list and a monthly trend series.
package revenue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/example/bookshop/pkg/models"
	"go.uber.org/zap"
)

type ProductSales struct {
	ProductID    uint64  `json:"product_id"`
	Title        string  `json:"title"`
	QuantitySold int     `json:"quantity_sold"`
	Revenue      int64   `json:"revenue"`
	Percentage   float64 `json:"percentage"`
}

type MonthPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Summary struct {
	Period            Period         `json:"period"`
	Window            Window         `json:"window"`
	TotalRevenue      int64          `json:"total_revenue"`
	TotalOrders       int            `json:"total_orders"`
	AverageOrderValue float64        `json:"average_order_value"`
	TopProducts       []ProductSales `json:"top_products"`
	MonthlySeries     []MonthPoint   `json:"monthly_series"`
}

// Aggregate totals the delivered orders placed inside w. Other orders are
// ignored, so callers may pass a superset.
func Aggregate(orders []models.Order, w Window) Summary {
	qualifying := Qualifying(orders, w)

	s := Summary{Window: w, TopProducts: RankProducts(qualifying)}
	for _, o := range qualifying {
		s.TotalRevenue += o.Total
	}
	s.TotalOrders = len(qualifying)
	if s.TotalOrders > 0 {
		s.AverageOrderValue = float64(s.TotalRevenue) / float64(s.TotalOrders)
	}
	return s
}

func Qualifying(orders []models.Order, w Window) []models.Order {
	var out []models.Order
	for _, o := range orders {
		if o.Status == models.StatusDelivered && w.Contains(o.PlacedAt) {
			out = append(out, o)
		}
	}
	return out
}

// RankProducts orders products by quantity sold, then revenue, both
// descending. Percentages are shares of the revenue of all ranked products.
func RankProducts(orders []models.Order) []ProductSales {
	byID := map[uint64]*ProductSales{}
	for _, o := range orders {
		for _, d := range o.Details {
			p, ok := byID[d.ProductID]
			if !ok {
				p = &ProductSales{ProductID: d.ProductID, Title: d.ProductTitle}
				byID[d.ProductID] = p
			}
			p.QuantitySold += d.Quantity
			p.Revenue += d.LineTotal
		}
	}

	var total int64
	ranked := make([]ProductSales, 0, len(byID))
	for _, p := range byID {
		total += p.Revenue
		ranked = append(ranked, *p)
	}
	for i := range ranked {
		if total > 0 {
			ranked[i].Percentage = float64(ranked[i].Revenue) / float64(total) * 100
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.QuantitySold != b.QuantitySold {
			return a.QuantitySold > b.QuantitySold
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.ProductID < b.ProductID
	})
	return ranked
}

func TopN(ranked []ProductSales, n int) []ProductSales {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// MonthlySeries returns twelve points, January to December of year, holding
// delivered revenue divided by scale.
func MonthlySeries(orders []models.Order, year int, loc *time.Location, scale float64) []MonthPoint {
	if scale <= 0 {
		scale = 1
	}
	var sums [12]int64
	for _, o := range orders {
		if o.Status != models.StatusDelivered {
			continue
		}
		placed := o.PlacedAt.In(loc)
		if placed.Year() != year {
			continue
		}
		sums[placed.Month()-1] += o.Total
	}

	series := make([]MonthPoint, 0, 12)
	for m := time.January; m <= time.December; m++ {
		series = append(series, MonthPoint{Label: m.String(), Value: float64(sums[m-1]) / scale})
	}
	return series
}

// Store returns delivered orders, with details, placed in [from, to).
type Store interface {
	ListDeliveredOrders(ctx context.Context, from, to time.Time) ([]models.Order, error)
}

type Service struct {
	store  Store
	topN   int
	scale  float64
	loc    *time.Location
	logger *zap.Logger
}

func NewService(store Store, topN int, scale float64, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, topN: topN, scale: scale, loc: loc, logger: logger}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Summary(ctx context.Context, period string, anchor time.Time) (*Summary, error) {
	p := ParsePeriod(period)
	if string(p) != period {
		s.logger.Debug("Report period defaulted", zap.String("requested", period), zap.String("used", string(p)))
	}
	anchor = anchor.In(s.loc)
	w := WindowFor(p, anchor)

	from, to := w.Bounds()
	orders, err := s.store.ListDeliveredOrders(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load delivered orders for %s window: %w", p, err)
	}
	summary := Aggregate(orders, w)
	summary.Period = p
	summary.TopProducts = TopN(summary.TopProducts, s.topN)

	yw := WindowFor(PeriodYear, anchor)
	from, to = yw.Bounds()
	yearOrders, err := s.store.ListDeliveredOrders(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load delivered orders for year %d: %w", anchor.Year(), err)
	}
	summary.MonthlySeries = MonthlySeries(yearOrders, anchor.Year(), s.loc, s.scale)

	s.logger.Info("Revenue summary computed",
		zap.String("period", string(p)),
		zap.Time("start", w.Start),
		zap.Time("end", w.End),
		zap.Int("orders", summary.TotalOrders),
		zap.Int64("revenue", summary.TotalRevenue))
	return &summary, nil
}
