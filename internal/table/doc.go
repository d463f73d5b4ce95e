// Package table provides the in-memory tabular model that every pipeline
// stage works on.
//
// A Table is an ordered set of named columns over rows of player-season
// observations. Cells hold one of four shapes:
//
//   - nil for a missing value (NaN is folded into nil on write)
//   - float64 for every number, whatever its source type
//   - string for text
//   - bool for flags produced in code
//
// Operations that reshape a table (Drop, Select, Rename, Filter, SortBy,
// Head, Merge, Concat) return a new Table and leave the receiver untouched.
// Cell writers (Set, SetColumn, AddColumn) mutate in place; processors clone
// first when they must not alter their input.
//
// Merge implements inner joins with pandas-compatible column naming:
// key columns shared by name appear once and other overlapping names are
// suffixed. GroupBy yields row positions per key tuple, skipping rows whose
// key holds a null.
//
// ReadCSV and WriteCSV are the storage codec. Numeric fields are parsed to
// float64 and the usual missing-value tokens (empty, NA, NaN, null, None)
// become nil.
package table
