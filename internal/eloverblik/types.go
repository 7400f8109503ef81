package eloverblik

import (
	"bytes"
	"encoding/json"
)

// MeterDataResponse is the envelope returned by the time-series endpoint.
// Result elements are kept raw so each one can be decoded and validated on
// its own.
type MeterDataResponse struct {
	Result []json.RawMessage `json:"result"`
}

// MeterDataResult is one element of MeterDataResponse.Result.
type MeterDataResult struct {
	Success   bool            `json:"success"`
	ErrorCode int             `json:"errorCode"`
	ErrorText string          `json:"errorText"`
	ID        string          `json:"id"`
	Document  *MarketDocument `json:"MyEnergyData_MarketDocument"`
}

// MarketDocument holds the time series of one result. Time series are kept
// raw for per-series validation.
type MarketDocument struct {
	MRID       string            `json:"mRID"`
	TimeSeries []json.RawMessage `json:"TimeSeries"`
}

// TimeSeries is a series of periods for one metering point. Periods are
// kept raw so a malformed period is skipped on its own.
type TimeSeries struct {
	MRID                  string                 `json:"mRID"`
	BusinessType          string                 `json:"businessType"`
	MarketEvaluationPoint *MarketEvaluationPoint `json:"MarketEvaluationPoint"`
	MeasurementUnit       *NamedValue            `json:"measurement_Unit"`
	MeasurementUnitName   *string                `json:"measurement_Unit.name"`
	Period                []json.RawMessage      `json:"Period"`
}

// MeteringPointID returns MarketEvaluationPoint.mRID.name, or "" when absent.
func (ts TimeSeries) MeteringPointID() string {
	if ts.MarketEvaluationPoint == nil || ts.MarketEvaluationPoint.MRID == nil {
		return ""
	}
	return ts.MarketEvaluationPoint.MRID.Name
}

// Unit returns the measurement unit, defaulting to "kWh".
func (ts TimeSeries) Unit() string {
	if ts.MeasurementUnitName != nil && *ts.MeasurementUnitName != "" {
		return *ts.MeasurementUnitName
	}
	if ts.MeasurementUnit != nil && ts.MeasurementUnit.Name != "" {
		return ts.MeasurementUnit.Name
	}
	return "kWh"
}

// MarketEvaluationPoint identifies the metering point of a time series.
type MarketEvaluationPoint struct {
	MRID *CodedName `json:"mRID"`
}

// CodedName is an identifier qualified by its coding scheme.
type CodedName struct {
	CodingScheme string `json:"codingScheme"`
	Name         string `json:"name"`
}

// NamedValue is an object carrying a single name.
type NamedValue struct {
	Name string `json:"name"`
}

// Period is a run of points starting at TimeInterval.Start. Points are kept
// raw and decoded one at a time.
type Period struct {
	Resolution   Text              `json:"resolution"`
	TimeInterval *TimeInterval     `json:"timeInterval"`
	Point        []json.RawMessage `json:"Point"`
}

// TimeInterval bounds a period. Values are RFC 3339 strings.
type TimeInterval struct {
	Start Text `json:"start"`
	End   Text `json:"end"`
}

// Point is one reading within a period; Position is 1-based.
type Point struct {
	Position Number `json:"position"`
	Quantity Number `json:"out_Quantity.quantity"`
	Quality  Text   `json:"out_Quantity.quality"`
}

// Number is a JSON value the API sends either as a number or as a numeric
// string. Raw holds the text for later parsing; Set is false for absent or
// null values. Unmarshalling never fails on valid JSON.
type Number struct {
	Raw string
	Set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) (err error) {
	n.Raw, n.Set, err = scalarText(b)
	return err
}

// Text is a JSON value the API documents as a string. Other JSON values keep
// their literal text, so 4 reads as "4". Set is false for absent or null
// values.
type Text struct {
	Value string
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) (err error) {
	t.Value, t.Set, err = scalarText(b)
	return err
}

// scalarText returns a JSON string unquoted and any other value verbatim.
func scalarText(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return "", false, nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	}
	return string(b), true, nil
}

// MeteringPointsResponse is returned by the metering points endpoint.
type MeteringPointsResponse struct {
	Result []MeteringPointInfo `json:"result"`
}

// MeteringPointInfo describes a metering point the caller has access to.
type MeteringPointInfo struct {
	MeteringPointID string `json:"meteringPointId"`
	TypeOfMP        string `json:"typeOfMP"`
	StreetName      string `json:"streetName"`
	BuildingNumber  string `json:"buildingNumber"`
	Postcode        string `json:"postcode"`
	CityName        string `json:"cityName"`
	ConsumerCVR     string `json:"consumerCVR"`
	HasRelation     bool   `json:"hasRelation"`
}

type tokenResponse struct {
	Result string `json:"result"`
}

type meterDataRequest struct {
	MeteringPoints struct {
		MeteringPoint []string `json:"meteringPoint"`
	} `json:"meteringPoints"`
}
