package provider

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/beanraft/district-cli/internal/model"
)

const (
	busStopsName     = "tago-busstops"
	busStopsPath     = "/1613000/BusSttnInfoInqireService/getCrdntPrxmtSttnList"
	busStopsAttempts = 2
	busStopsTimeout  = 6 * time.Second
)

// BusStops counts bus stops within walking range of a point, from the
// national transit information center.
type BusStops struct {
	portal  *Portal
	limiter *rate.Limiter
}

// NewBusStops creates the bus-stop provider.
func NewBusStops(p *Portal) *BusStops {
	return &BusStops{portal: p, limiter: p.Limiter()}
}

func (b *BusStops) Name() string                  { return busStopsName }
func (b *BusStops) Indicator() model.IndicatorKey { return model.IndicatorBusStops }
func (b *BusStops) Keying() Keying                { return KeyedByCoordinate }
func (b *BusStops) Retries() int                  { return busStopsAttempts }
func (b *BusStops) Timeout() time.Duration        { return busStopsTimeout }
func (b *BusStops) ExpandEligible() bool          { return false }

// Fetch lists stops near the resolved point. The service applies its own
// fixed radius.
func (b *BusStops) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: bus stops rate limit")
	}

	params := url.Values{
		"gpsLati":   {strconv.FormatFloat(req.Lat, 'f', 7, 64)},
		"gpsLongi":  {strconv.FormatFloat(req.Lon, 'f', 7, 64)},
		"numOfRows": {"100"},
		"pageNo":    {"1"},
	}
	body, err := b.portal.GetData(ctx, busStopsPath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: bus stops fetch")
	}

	payload := &BusStopsPayload{TotalCount: body.TotalCount}
	if err := decodeItems(body.Items, &payload.Stops); err != nil {
		return nil, eris.Wrap(err, "provider: bus stops rows")
	}
	return payload, nil
}

// BusStopsPayload is the native stop-list shape. TotalCount is
// authoritative for the radius.
type BusStopsPayload struct {
	TotalCount int
	Stops      []BusStopRow
}

// BusStopRow is one stop. Coordinates arrive as JSON numbers here,
// unlike most portal datasets.
type BusStopRow struct {
	NodeID   string  `json:"nodeid"`
	NodeName string  `json:"nodenm"`
	Lat      float64 `json:"gpslati"`
	Lon      float64 `json:"gpslong"`
	CityCode int     `json:"citycode"`
}

// Normalize reports the stop count; zero is a real measurement.
func (p *BusStopsPayload) Normalize() (model.Indicator, bool) {
	return model.Indicator{
		Key:         model.IndicatorBusStops,
		Value:       float64(p.TotalCount),
		Unit:        model.UnitFor(model.IndicatorBusStops),
		Provenance:  model.ProvenanceMeasured,
		Source:      busStopsName,
		SampleUnits: 1,
	}, true
}
