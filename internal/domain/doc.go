// Package domain models ensemble river-discharge forecasts and the flood trigger
// decisions derived from them.
//
// # Data Source
//
// Forecasts are GloFAS (Global Flood Awareness System) medium-range ensembles.
// An upstream merge step concatenates the daily issues of one month into a
// single cube per country, keyed by forecast date, ensemble member, lead-time
// step, latitude and longitude. The variable is "dis24": mean discharge over
// the preceding 24 hours in cubic meters per second. This package only reads
// cubes; it never converts units or mutates values.
//
// # GloFAS Conventions
//
// Ensemble:
//
//	51 members (1 control + 50 perturbed). Members can be missing at a cell,
//	encoded as NaN or the file's fill value. Missing members are dropped from
//	both the numerator and the denominator of the exceedance probability.
//
// Lead time:
//
//	Steps are daily; step i carries its lead time in days, usually 1..30.
//	The valid date of a value is forecast date + lead days.
//
// Return-period thresholds:
//
//	Static grids ("rl_2.0", "rl_5.0", ...) giving the discharge with a given
//	average recurrence interval. They may use a different grid than the
//	forecast cube, so station coordinates are resolved against each grid
//	independently. Intermediate return periods (e.g. 3-year) are interpolated
//	linearly in log(return period) between the bracketing grids.
//
// # Decision Semantics
//
// Exceedance is strict: a member exactly at the threshold does not count.
//
// Display tiers (informational):
//
//	probability >= high boundary   → high   (default 0.70)
//	probability >= medium boundary → medium (default 0.50)
//	otherwise                      → low
//	no valid member                → no_data
//
// Activation uses the basin's own probability threshold at its configured
// lead time, never the display tier. Countries combine basins with
// ANY_BASIN or ALL_BASINS; missing basins make the outcome undetermined rather
// than "not triggered" whenever they could have changed it. See [Aggregate].
//
// Alerting only reacts to the latest forecast date of every triggering basin.
// See [GateAlerts].
package domain
