package weather

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfields/weathervane/internal/common"
)

// Condition vocabularies that trigger derived alerts.
var (
	cycloneWords = []string{"cyclone", "hurricane", "tropical storm", "tropical-storm"}
	severeWords  = []string{"tornado", "blizzard", "thunderstorm"}
)

// Synthesize derives alerts from already-fetched weather data. It is pure:
// no network calls, deterministic output for the same input. Rules are
// applied independently and unioned; the set key collapses duplicates from
// overlapping current/forecast data within one call.
func Synthesize(current *CurrentConditions, forecast Forecast, windThreshold float64) AlertSet {
	alerts := NewAlertSet()
	if windThreshold <= 0 {
		windThreshold = DefaultWindThreshold
	}

	if current != nil {
		day := midnightUTC(current.ObservedAt)
		if current.WindSpeed > windThreshold {
			alerts.Add(windAlert(current.WindSpeed, windThreshold, day))
		}
		addConditionAlerts(&alerts, current.ConditionText, day)
	}

	for _, fd := range forecast {
		day, err := time.Parse("2006-01-02", fd.Date)
		if err != nil {
			continue
		}
		if fd.WindSpeed > windThreshold {
			alerts.Add(windAlert(fd.WindSpeed, windThreshold, day))
		}
		addConditionAlerts(&alerts, fd.ConditionText, day)
	}

	return alerts
}

// DefaultWindThreshold is the wind speed (m/s) above which a derived wind
// alert is emitted.
const DefaultWindThreshold = 15.0

func windAlert(speed, threshold float64, day time.Time) AlertRecord {
	severity := SeverityModerate
	if speed >= 1.5*threshold {
		severity = SeveritySevere
	}
	return AlertRecord{
		Severity:       severity,
		Title:          "High Wind Warning",
		Description:    fmt.Sprintf("Strong winds detected: %.1f m/s", speed),
		StartTime:      day,
		SourceProvider: DerivedSource,
		Category:       CategoryWind,
	}
}

func addConditionAlerts(alerts *AlertSet, condition string, day time.Time) {
	text := strings.ToLower(condition)

	if common.HasAny(text, cycloneWords...) {
		alerts.Add(AlertRecord{
			Severity:       SeveritySevere,
			Title:          "Cyclone Warning",
			Description:    fmt.Sprintf("Cyclonic conditions reported: %s", condition),
			StartTime:      day,
			SourceProvider: DerivedSource,
			Category:       CategoryCyclone,
		})
	}

	if common.HasAny(text, severeWords...) {
		alerts.Add(AlertRecord{
			Severity:       SeveritySevere,
			Title:          "Severe Weather Warning",
			Description:    fmt.Sprintf("Severe weather reported: %s", condition),
			StartTime:      day,
			SourceProvider: DerivedSource,
			Category:       CategorySevere,
		})
	}
}

func midnightUTC(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
