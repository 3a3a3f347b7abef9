package model

// IndicatorKey names one normalized quantitative indicator about a district.
// The set is closed: providers map onto exactly one key each.
type IndicatorKey string

const (
	IndicatorResidents   IndicatorKey = "residents"    // registered residents, persons
	IndicatorWorkers     IndicatorKey = "workers"      // workplace population, persons
	IndicatorFootTraffic IndicatorKey = "foot_traffic" // pedestrian volume, persons/month
	IndicatorCafes       IndicatorKey = "cafes"        // cafe storefronts, count
	IndicatorRent        IndicatorKey = "rent"         // commercial rent, KRW/m²·month
	IndicatorSpending    IndicatorKey = "spending"     // card spending, KRW/month
	IndicatorAptPrice    IndicatorKey = "apt_price"    // apartment trade price, KRW/m²
	IndicatorSubway      IndicatorKey = "subway"       // subway boardings, persons/month
	IndicatorBusStops    IndicatorKey = "bus_stops"    // bus stops within walk radius, count
)

// AllIndicators lists every indicator key in stable order.
var AllIndicators = []IndicatorKey{
	IndicatorResidents,
	IndicatorWorkers,
	IndicatorFootTraffic,
	IndicatorCafes,
	IndicatorRent,
	IndicatorSpending,
	IndicatorAptPrice,
	IndicatorSubway,
	IndicatorBusStops,
}

// Provenance marks where a numeric value came from.
type Provenance string

const (
	// ProvenanceMeasured means a provider explicitly supplied the value
	// (a neighbor mean of explicit values also counts, with SampleUnits
	// recording the contributors). Never assigned to interpolated data.
	ProvenanceMeasured Provenance = "measured"
	// ProvenanceEstimated means the value was model-supplied or derived.
	ProvenanceEstimated Provenance = "estimated"
	// ProvenanceAbsent means no source produced the value.
	ProvenanceAbsent Provenance = "absent"
)

// Indicator is one normalized value inside an AggregateRecord. Values are
// always converted to the indicator's common unit before they get here;
// recurring counts are per month.
type Indicator struct {
	Key        IndicatorKey `json:"key"`
	Value      float64      `json:"value"`
	Unit       string       `json:"unit"`
	Provenance Provenance   `json:"provenance"`
	// Source identifies the contributing provider, or "neighbor-mean" for
	// neighbor-expansion results.
	Source string `json:"source,omitempty"`
	// SampleUnits is the number of administrative units contributing to a
	// neighbor-mean value; 1 for direct measurements.
	SampleUnits int `json:"sample_units,omitempty"`
}

// indicatorUnits maps each key to its normalized display unit.
var indicatorUnits = map[IndicatorKey]string{
	IndicatorResidents:   "명",
	IndicatorWorkers:     "명",
	IndicatorFootTraffic: "명/월",
	IndicatorCafes:       "개",
	IndicatorRent:        "원/㎡·월",
	IndicatorSpending:    "원/월",
	IndicatorAptPrice:    "원/㎡",
	IndicatorSubway:      "명/월",
	IndicatorBusStops:    "개",
}

// UnitFor returns the normalized unit label for an indicator key.
func UnitFor(key IndicatorKey) string {
	return indicatorUnits[key]
}

// indicatorLabels maps each key to its Korean display label, used in
// prompts and fallback text.
var indicatorLabels = map[IndicatorKey]string{
	IndicatorResidents:   "주거인구",
	IndicatorWorkers:     "직장인구",
	IndicatorFootTraffic: "유동인구",
	IndicatorCafes:       "카페 점포 수",
	IndicatorRent:        "상가 임대료",
	IndicatorSpending:    "카드 소비금액",
	IndicatorAptPrice:    "아파트 실거래가",
	IndicatorSubway:      "지하철 승차인원",
	IndicatorBusStops:    "버스 정류장 수",
}

// LabelFor returns the Korean display label for an indicator key.
func LabelFor(key IndicatorKey) string {
	return indicatorLabels[key]
}
