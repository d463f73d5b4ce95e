// Package exporter writes tables to files people open in spreadsheets.
//
// CSVWriter writes UTF-8 CSV with an optional BOM so Excel picks the right
// encoding. XLSXWriter writes workbooks through excelize, with a data sheet
// and an optional per-column summary sheet, and reads sheets back into
// tables. Saver adapts both to the storage.Saver interface so pipelines can
// export to the exports directory like any other backend.
package exporter
