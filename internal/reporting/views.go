package reporting

// view is one reporting object, created in slice order.
type view struct {
	name string
	sql  string
}

const createRawReadings = `
CREATE TABLE reporting_raw_readings (
	metering_point_id   TEXT NOT NULL,
	timestamp           TEXT NOT NULL, -- UTC, YYYY-MM-DD HH:MM:SS
	consumption_value   REAL,
	quality             TEXT,
	unit                TEXT,
	ingestion_timestamp TEXT,
	ingestion_date      TEXT
)`

const createMetadataTable = `
CREATE TABLE reporting_meter_metadata (
	metering_point_id TEXT PRIMARY KEY,
	name              TEXT,
	type              TEXT,
	location          TEXT,
	description       TEXT,
	extra_metadata    TEXT -- JSON object, NULL when empty
)`

// readingViews depend only on reporting_raw_readings and on each other.
var readingViews = []view{
	{"reporting_meter_data_stage", `
CREATE VIEW reporting_meter_data_stage AS
SELECT
	metering_point_id,
	timestamp AS reading_ts_utc,
	date(timestamp) AS reading_date,
	CAST(strftime('%H', timestamp) AS INTEGER) AS reading_hour,
	CASE strftime('%w', timestamp) WHEN '0' THEN 7 ELSE CAST(strftime('%w', timestamp) AS INTEGER) END AS reading_weekday,
	CASE strftime('%w', timestamp)
		WHEN '0' THEN 'Sunday'
		WHEN '1' THEN 'Monday'
		WHEN '2' THEN 'Tuesday'
		WHEN '3' THEN 'Wednesday'
		WHEN '4' THEN 'Thursday'
		WHEN '5' THEN 'Friday'
		ELSE 'Saturday'
	END AS reading_weekday_label,
	CAST(strftime('%m', timestamp) AS INTEGER) AS reading_month,
	CAST(strftime('%Y', timestamp) AS INTEGER) AS reading_year,
	consumption_value,
	quality,
	unit,
	ingestion_timestamp,
	ingestion_date
FROM reporting_raw_readings`},

	{"reporting_meter_data_clean", `
CREATE VIEW reporting_meter_data_clean AS
SELECT *
FROM reporting_meter_data_stage
WHERE consumption_value IS NOT NULL AND consumption_value >= 0`},

	{"reporting_daily_consumption", `
CREATE VIEW reporting_daily_consumption AS
SELECT
	metering_point_id,
	reading_date,
	SUM(consumption_value) AS total_kwh,
	AVG(consumption_value) AS avg_kwh,
	MIN(consumption_value) AS min_kwh,
	MAX(consumption_value) AS max_kwh,
	COUNT(*) AS reading_count
FROM reporting_meter_data_clean
GROUP BY metering_point_id, reading_date`},

	{"reporting_monthly_consumption", `
CREATE VIEW reporting_monthly_consumption AS
WITH monthly AS (
	SELECT
		metering_point_id,
		date(reading_date, 'start of month') AS month_start,
		SUM(consumption_value) AS total_kwh
	FROM reporting_meter_data_clean
	GROUP BY metering_point_id, month_start
),
enriched AS (
	SELECT
		metering_point_id,
		month_start,
		total_kwh,
		LAG(total_kwh) OVER (PARTITION BY metering_point_id ORDER BY month_start) AS previous_month_kwh
	FROM monthly
)
SELECT
	metering_point_id,
	month_start,
	total_kwh,
	previous_month_kwh,
	total_kwh - previous_month_kwh AS delta_kwh,
	CASE
		WHEN previous_month_kwh IS NULL OR previous_month_kwh = 0 THEN NULL
		ELSE (total_kwh - previous_month_kwh) / previous_month_kwh
	END AS delta_ratio
FROM enriched`},

	{"reporting_hourly_profile", `
CREATE VIEW reporting_hourly_profile AS
SELECT
	metering_point_id,
	reading_hour,
	reading_weekday,
	reading_weekday_label,
	AVG(consumption_value) AS avg_kwh
FROM reporting_meter_data_clean
GROUP BY metering_point_id, reading_hour, reading_weekday, reading_weekday_label`},

	{"reporting_missing_data_summary", `
CREATE VIEW reporting_missing_data_summary AS
WITH daily_counts AS (
	SELECT metering_point_id, reading_date, COUNT(*) AS actual_readings
	FROM reporting_meter_data_stage
	GROUP BY metering_point_id, reading_date
)
SELECT
	metering_point_id,
	reading_date,
	actual_readings,
	24 AS expected_readings,
	24 - actual_readings AS missing_readings
FROM daily_counts`},

	{"reporting_load_variability", `
CREATE VIEW reporting_load_variability AS
WITH daily_mean AS (
	SELECT metering_point_id, reading_date, AVG(consumption_value) AS mean_kwh
	FROM reporting_meter_data_clean
	GROUP BY metering_point_id, reading_date
)
SELECT
	c.metering_point_id,
	c.reading_date,
	safe_sqrt(AVG((c.consumption_value - m.mean_kwh) * (c.consumption_value - m.mean_kwh))) AS hourly_stddev_kwh,
	MAX(c.consumption_value) AS peak_kwh
FROM reporting_meter_data_clean c
JOIN daily_mean m
	ON m.metering_point_id = c.metering_point_id AND m.reading_date = c.reading_date
GROUP BY c.metering_point_id, c.reading_date`},

	{"reporting_daily_quality_flags", `
CREATE VIEW reporting_daily_quality_flags AS
WITH enriched AS (
	SELECT
		metering_point_id,
		reading_date,
		total_kwh,
		LAG(total_kwh) OVER (PARTITION BY metering_point_id ORDER BY reading_date) AS previous_total,
		LEAD(total_kwh) OVER (PARTITION BY metering_point_id ORDER BY reading_date) AS next_total
	FROM reporting_daily_consumption
)
SELECT
	metering_point_id,
	reading_date,
	total_kwh,
	CASE
		WHEN total_kwh = 0 AND COALESCE(previous_total, 0) > 0 AND COALESCE(next_total, 0) > 0 THEN 1
		ELSE 0
	END AS isolated_zero_flag
FROM enriched`},
}

// enrichedView joins daily totals with metadata; created after the metadata
// table is replaced.
var enrichedView = view{"reporting_meter_metadata_enriched", `
CREATE VIEW reporting_meter_metadata_enriched AS
SELECT
	dc.metering_point_id,
	meta.name,
	meta.type,
	meta.location,
	meta.description,
	meta.extra_metadata,
	dc.reading_date,
	dc.total_kwh,
	dc.avg_kwh,
	dc.min_kwh,
	dc.max_kwh,
	dc.reading_count
FROM reporting_daily_consumption AS dc
LEFT JOIN reporting_meter_metadata AS meta
	ON meta.metering_point_id = dc.metering_point_id`}
