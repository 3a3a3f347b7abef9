package provider

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/beanraft/district-cli/internal/model"
)

const (
	subwayName     = "tago-subway"
	subwayPath     = "/1613000/SubwayInfoService/getCrdntPrxmtSttnRidership"
	subwayAttempts = 1
	subwayTimeout  = 6 * time.Second

	// daysPerMonth converts daily-average ridership to a monthly volume.
	daysPerMonth = 30
)

// Subway supplies monthly subway boardings near a point. Ridership is
// reported per station and line; stations outside metro networks simply
// return no rows.
type Subway struct {
	portal  *Portal
	limiter *rate.Limiter
}

// NewSubway creates the subway-ridership provider.
func NewSubway(p *Portal) *Subway {
	return &Subway{portal: p, limiter: p.Limiter()}
}

func (s *Subway) Name() string                  { return subwayName }
func (s *Subway) Indicator() model.IndicatorKey { return model.IndicatorSubway }
func (s *Subway) Keying() Keying                { return KeyedByCoordinate }
func (s *Subway) Retries() int                  { return subwayAttempts }
func (s *Subway) Timeout() time.Duration        { return subwayTimeout }
func (s *Subway) ExpandEligible() bool          { return false }

// Fetch retrieves ridership for stations within walking range of the
// resolved point.
func (s *Subway) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: subway rate limit")
	}

	params := url.Values{
		"gpsLati":   {strconv.FormatFloat(req.Lat, 'f', 7, 64)},
		"gpsLongi":  {strconv.FormatFloat(req.Lon, 'f', 7, 64)},
		"numOfRows": {"10"},
		"pageNo":    {"1"},
	}
	body, err := s.portal.GetData(ctx, subwayPath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: subway fetch")
	}

	payload := &SubwayPayload{}
	if err := decodeItems(body.Items, &payload.Stations); err != nil {
		return nil, eris.Wrap(err, "provider: subway rows")
	}
	return payload, nil
}

// SubwayPayload is the native ridership shape, one row per station and
// line.
type SubwayPayload struct {
	Stations []SubwayStationRow
}

// SubwayStationRow is one station-line ridership row.
type SubwayStationRow struct {
	StationID   string `json:"subwayStationId"`
	StationName string `json:"subwayStationName"`
	RouteName   string `json:"subwayRouteName"`
	DailyRide   string `json:"avgDailyRideNmpr"`
	Distance    string `json:"dist"`
}

// Normalize sums daily boardings across the nearby station lines and
// converts to a monthly volume.
func (p *SubwayPayload) Normalize() (model.Indicator, bool) {
	var daily float64
	var n int
	for _, st := range p.Stations {
		ride, ok := parseNumber(st.DailyRide)
		if !ok {
			continue
		}
		daily += ride
		n++
	}
	if n == 0 {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorSubway,
		Value:       math.Round(daily * daysPerMonth),
		Unit:        model.UnitFor(model.IndicatorSubway),
		Provenance:  model.ProvenanceMeasured,
		Source:      subwayName,
		SampleUnits: 1,
	}, true
}
