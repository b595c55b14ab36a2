package schemas

import (
	"time"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

// Names of the built-in custom validators.
const (
	FutureDate          = "future_date"
	USState             = "us_state"
	ISOCountry          = "iso_country"
	PositiveWeight      = "positive_weight"
	DispatchAfterPickup = "dispatch_after_pickup"
)

// MaxWeightLbs is the gross weight limit accepted by positive_weight.
const MaxWeightLbs = 80000

// pickupField is the trips column dispatch_after_pickup compares against.
const pickupField = "pickupDate"

// now is replaced in tests.
var now = time.Now

// registerValidators runs before the built-in configs that reference them.
func registerValidators() {
	core.RegisterValidator(FutureDate, futureDate)
	core.RegisterValidator(USState, usState)
	core.RegisterValidator(ISOCountry, isoCountry)
	core.RegisterValidator(PositiveWeight, positiveWeight)
	core.RegisterValidator(DispatchAfterPickup, dispatchAfterPickup)
}

func futureDate(v core.Value, _ core.Row) (string, error) {
	d, ok := v.Date()
	if !ok {
		return "Invalid date", nil
	}
	today := truncateDay(now())
	if truncateDay(d).Before(today) {
		return "Date must be today or later", nil
	}
	return "", nil
}

func usState(v core.Value, _ core.Row) (string, error) {
	if _, ok := NormalizeUsState(v.Text()); !ok {
		return "Unknown US state", nil
	}
	return "", nil
}

func isoCountry(v core.Value, _ core.Row) (string, error) {
	if !IsCountryCode(v.Text()) {
		return "Unknown country code", nil
	}
	return "", nil
}

func positiveWeight(v core.Value, _ core.Row) (string, error) {
	n, ok := v.Number()
	switch {
	case !ok:
		return "Invalid number", nil
	case n <= 0:
		return "Weight must be greater than 0", nil
	case n > MaxWeightLbs:
		return "Weight exceeds the 80000 lb limit", nil
	}
	return "", nil
}

// dispatchAfterPickup compares the value with the row's pickup date column.
// A missing or unparseable pickup date passes; its own rules report it.
func dispatchAfterPickup(v core.Value, row core.Row) (string, error) {
	dispatch, ok := v.Date()
	if !ok {
		return "Invalid date", nil
	}
	cell, _ := row.Get(pickupField)
	if pickup, ok := cell.Date(); ok && dispatch.Before(pickup) {
		return "Dispatch date must not be before pickup date", nil
	}
	return "", nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
